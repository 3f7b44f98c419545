package controller

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const sessionCookieName = "airdash_session"

// maxPM25 bounds the concentration accepted by GET /api/v1/aqi.
const maxPM25 = 1000

func parsePM25Query(r *http.Request) (float64, error) {
	s := strings.TrimSpace(r.URL.Query().Get("pm25"))
	if s == "" {
		return 0, errors.New("missing 'pm25'")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("invalid 'pm25' (expected number)")
	}
	if v < 0 {
		return 0, errors.New("'pm25' must be >= 0")
	}
	if v > maxPM25 {
		return 0, errors.New("'pm25' must be <= 1000")
	}
	return v, nil
}

// sessionID returns the viewer's session id, issuing a new one when the
// request has none or an invalid one. The cookie is written on every visit
// so its expiry slides with activity.
func (c *airQualityControllerImpl) sessionID(w http.ResponseWriter, r *http.Request) string {
	id := ""
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if parsed, err := uuid.Parse(cookie.Value); err == nil {
			id = parsed.String()
		}
	}
	if id == "" {
		id = uuid.NewString()
	} else if c.sessionTTL <= 0 {
		return id
	}

	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	if c.sessionTTL > 0 {
		cookie.MaxAge = int(c.sessionTTL.Seconds())
	}
	http.SetCookie(w, cookie)
	return id
}
