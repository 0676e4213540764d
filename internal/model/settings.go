package model

// Credentials holds the provider keys that can be changed at runtime
type Credentials struct {
	SpotifyClientID     string `json:"spotify_client_id"`
	SpotifyClientSecret string `json:"spotify_client_secret"`
	LastFMAPIKey        string `json:"lastfm_api_key"`
	LastFMAPISecret     string `json:"lastfm_api_secret"`
}

// CredentialsUpdate sets any subset of the credentials. Nil fields are left untouched.
type CredentialsUpdate struct {
	SpotifyClientID     *string `json:"spotify_client_id" validate:"omitempty,max=256"`
	SpotifyClientSecret *string `json:"spotify_client_secret" validate:"omitempty,max=256"`
	LastFMAPIKey        *string `json:"lastfm_api_key" validate:"omitempty,max=256"`
	LastFMAPISecret     *string `json:"lastfm_api_secret" validate:"omitempty,max=256"`
}

// CredentialsStatus reports which credentials are present without revealing them
type CredentialsStatus struct {
	SpotifyClientID     bool `json:"spotify_client_id"`
	SpotifyClientSecret bool `json:"spotify_client_secret"`
	LastFMAPIKey        bool `json:"lastfm_api_key"`
	LastFMAPISecret     bool `json:"lastfm_api_secret"`
}

// Status summarizes c for the config endpoint.
func (c Credentials) Status() CredentialsStatus {
	return CredentialsStatus{
		SpotifyClientID:     c.SpotifyClientID != "",
		SpotifyClientSecret: c.SpotifyClientSecret != "",
		LastFMAPIKey:        c.LastFMAPIKey != "",
		LastFMAPISecret:     c.LastFMAPISecret != "",
	}
}
