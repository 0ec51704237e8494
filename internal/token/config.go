package token

import (
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/spotify"
)

// Scopes requested at sign-in.
var Scopes = []string{
	"user-read-email",
	"user-read-private",
	"user-top-read",
	"user-read-recently-played",
	"playlist-read-private",
}

// NewConfig builds the Spotify OAuth2 config. Client credentials are sent as
// HTTP Basic auth on every token request.
func NewConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	endpoint := spotify.Endpoint
	endpoint.AuthStyle = oauth2.AuthStyleInHeader

	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint:     endpoint,
	}
}
