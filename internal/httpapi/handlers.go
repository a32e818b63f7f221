package httpapi

import (
	"net/http"
	"time"

	"github.com/rooftopdev/accountd/internal/apperr"
	"github.com/rooftopdev/accountd/internal/auth"
	"github.com/rooftopdev/accountd/internal/mailqueue"
	"github.com/rooftopdev/accountd/internal/middleware"
	"github.com/rooftopdev/accountd/internal/validate"
)

type signupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Avatar    string `json:"avatar"`
	Location  string `json:"location"`
	// DOB is an optional RFC 3339 timestamp.
	DOB string `json:"dob"`
}

func (in *signupRequest) validate() (*time.Time, error) {
	v := validate.New()
	v.Required("email", in.Email)
	v.Email("email", in.Email)
	v.Required("password", in.Password)
	v.MinLen("password", in.Password, 8)
	v.MaxLen("password", in.Password, 72)
	v.Required("firstName", in.FirstName)
	v.MaxLen("firstName", in.FirstName, 100)
	v.Required("lastName", in.LastName)
	v.MaxLen("lastName", in.LastName, 100)

	var dob *time.Time
	if in.DOB != "" {
		parsed, err := time.Parse(time.RFC3339, in.DOB)
		if err != nil {
			v.Add("dob", "must be an RFC 3339 timestamp")
		} else {
			dob = &parsed
		}
	}

	if err := v.Err(); err != nil {
		return nil, err
	}
	return dob, nil
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in signupRequest
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	dob, err := in.validate()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	user, job, err := s.svc.Signup(r.Context(), auth.SignupInput{
		Email:     in.Email,
		Password:  in.Password,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Avatar:    in.Avatar,
		Location:  in.Location,
		DOB:       dob,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.enqueue(r, job)

	s.writeData(w, http.StatusCreated, map[string]any{
		"message": "account created, check your email to activate it",
		"user":    user.Projection(),
	})
}

type activateRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var in activateRequest
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	v := validate.New()
	v.Required("token", in.Token)
	if err := v.Err(); err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := s.svc.ActivateAccount(r.Context(), in.Token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeData(w, http.StatusOK, map[string]any{
		"message": "account activated, you can log in now",
		"user":    user.Projection(),
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	v := validate.New()
	v.Required("email", in.Email)
	v.Email("email", in.Email)
	v.Required("password", in.Password)
	if err := v.Err(); err != nil {
		s.writeError(w, r, err)
		return
	}

	user, pair, err := s.svc.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.setSessionCookies(w, pair.AccessToken, pair.RefreshToken)
	s.writeData(w, http.StatusOK, map[string]any{"user": user.Projection()})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		s.writeError(w, r, apperr.New(apperr.KindAuthentication, "not authenticated"))
		return
	}

	if err := s.svc.Logout(r.Context(), userID); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.clearSessionCookies(w)
	s.writeData(w, http.StatusOK, map[string]any{"message": "logged out"})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var in forgotPasswordRequest
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	v := validate.New()
	v.Required("email", in.Email)
	v.Email("email", in.Email)
	if err := v.Err(); err != nil {
		s.writeError(w, r, err)
		return
	}

	job, queued, err := s.svc.ForgotPassword(r.Context(), in.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if queued {
		s.enqueue(r, job)
	}

	// The response is identical whether or not the account exists.
	s.writeData(w, http.StatusOK, map[string]any{
		"message": "if that email is registered, a reset link is on its way",
	})
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var in resetPasswordRequest
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	v := validate.New()
	v.Required("token", in.Token)
	v.Required("password", in.Password)
	v.MinLen("password", in.Password, 8)
	v.MaxLen("password", in.Password, 72)
	if err := v.Err(); err != nil {
		s.writeError(w, r, err)
		return
	}

	job, err := s.svc.ResetPassword(r.Context(), in.Token, in.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.enqueue(r, job)

	s.writeData(w, http.StatusOK, map[string]any{
		"message": "password updated, please log in with your new password",
	})
}

// handleRefresh runs behind the rotation gate; by the time it executes the
// presented refresh token matched the cached pair and verified.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		s.writeError(w, r, apperr.New(apperr.KindAuthentication, "not authenticated"))
		return
	}

	user, pair, err := s.svc.ReissueSession(r.Context(), userID)
	if err != nil {
		s.clearSessionCookies(w)
		s.writeError(w, r, err)
		return
	}

	s.setSessionCookies(w, pair.AccessToken, pair.RefreshToken)
	s.writeData(w, http.StatusOK, map[string]any{"user": user.Projection()})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if user, ok := middleware.CurrentUser(r.Context()); ok {
		s.writeData(w, http.StatusOK, map[string]any{"user": user})
		return
	}

	userID, ok := middleware.UserID(r.Context())
	if !ok {
		s.writeError(w, r, apperr.New(apperr.KindAuthentication, "not authenticated"))
		return
	}

	user, err := s.svc.CurrentUser(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]any{"user": user})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeData(w, http.StatusOK, map[string]any{
		"service": s.opts.AppName,
		"status":  "ok",
	})
}

// enqueue hands an email job to the queue. A queue outage is logged but
// never fails the request; the account operation already committed.
func (s *Server) enqueue(r *http.Request, job mailqueue.Job) {
	if err := s.queue.Enqueue(r.Context(), job); err != nil {
		s.log.Error().Err(err).Str("kind", string(job.Kind)).Msg("email enqueue failed")
	}
}
