package controller

import (
	"errors"
	"net/http"

	"github.com/facturier/backoffice/model"

	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (ctrl *controller) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return respond(c, http.StatusBadRequest, apiError("bad_request", "Requête invalide"))
	}
	u, err := ctrl.model.Authenticate(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, model.ErrBadCredentials) {
			return respond(c, http.StatusUnauthorized, apiError("bad_credentials", "Identifiants incorrects"))
		}
		return ErrInternal(err)
	}

	sess, _ := session.Get("session", c)
	sess.Values["uid"] = u.ID
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return ErrInternal(err)
	}
	return respond(c, http.StatusOK, echo.Map{"ok": true})
}

func (ctrl *controller) logout(c echo.Context) error {
	sess, _ := session.Get("session", c)
	delete(sess.Values, "uid")
	sess.Options.MaxAge = -1
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return ErrInternal(err)
	}
	return respond(c, http.StatusOK, echo.Map{"ok": true})
}

// authMiddleware guards the facture and export routes. The export request
// rides on the same session cookie (the browser sends it with credentials).
func (ctrl *controller) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess, err := session.Get("session", c)
		if err != nil {
			return respond(c, http.StatusUnauthorized, apiError("unauthorized", "Authentification requise"))
		}
		uid, ok := sess.Values["uid"].(uint)
		if !ok || uid == 0 {
			return respond(c, http.StatusUnauthorized, apiError("unauthorized", "Authentification requise"))
		}
		c.Set("uid", uid)
		return next(c)
	}
}
