package auth

import "attendboard/internal/session"

// Decision is what the route guard does with a request.
type Decision int

const (
	ShowLoading Decision = iota
	RedirectLogin
	Render
)

func (d Decision) String() string {
	switch d {
	case ShowLoading:
		return "show_loading"
	case RedirectLogin:
		return "redirect_login"
	case Render:
		return "render"
	default:
		return "unknown"
	}
}

// Decide maps a session view to a guard decision. A loading session never
// redirects, whatever its other fields say.
func Decide(v session.View) Decision {
	switch {
	case v.Loading:
		return ShowLoading
	case !v.IsAuthenticated:
		return RedirectLogin
	default:
		return Render
	}
}
