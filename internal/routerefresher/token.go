package routerefresher

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuthTokenFunc returns a bearer-token source backed by the OAuth
// client-credentials flow against tokenURL. Tokens are cached and renewed
// by the underlying oauth2 token source; a failed acquisition yields an
// empty token for that fetch and is retried on the next one.
func OAuthTokenFunc(ctx context.Context, tokenURL, clientID, clientSecret string) func() string {
	cc := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}
	src := cc.TokenSource(ctx)
	log := logrus.WithField("component", "routerefresher")

	return func() string {
		tok, err := src.Token()
		if err != nil {
			log.WithError(err).Warn("oauth token acquisition failed")
			return ""
		}
		return tok.AccessToken
	}
}
