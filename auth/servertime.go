package auth

import (
	"context"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"lyrics-sync-go/logcolors"
)

type serverTimeResponse struct {
	ServerTime int64 `json:"serverTime"`
}

func (m *TokenManager) fetchServerTime(ctx context.Context) (int64, error) {
	header := http.Header{}
	header.Set("User-Agent", m.opts.UserAgent)

	var body serverTimeResponse
	if err := m.client.GetJSON(ctx, m.opts.ServerTimeURL, header, &body); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrServerTime, err)
	}
	if body.ServerTime <= 0 {
		return 0, fmt.Errorf("%w: missing serverTime", ErrServerTime)
	}
	return body.ServerTime, nil
}

// ServerTime returns the upstream clock in unix seconds. The TOTP is only accepted when
// built from this clock, so a failure is returned rather than replaced by local time.
func (m *TokenManager) ServerTime(ctx context.Context) (int64, error) {
	t, err := m.fetchServerTime(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Warnf("%s %v", logcolors.LogServerTime, err)
		}
		return 0, err
	}
	return t, nil
}
