package spotify

type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height,omitempty"`
	Width  int    `json:"width,omitempty"`
}

type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Album struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Images []Image `json:"images,omitempty"`
}

type Track struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	URI          string            `json:"uri"`
	DurationMs   int               `json:"duration_ms"`
	Popularity   int               `json:"popularity,omitempty"`
	PreviewURL   string            `json:"preview_url,omitempty"`
	Artists      []Artist          `json:"artists"`
	Album        Album             `json:"album"`
	ExternalURLs map[string]string `json:"external_urls,omitempty"`
}

type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// TrackRef is the summary of a playlist's tracks embedded in search results.
type TrackRef struct {
	Href  string `json:"href"`
	Total int    `json:"total"`
}

type Playlist struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	URI          string            `json:"uri"`
	Images       []Image           `json:"images,omitempty"`
	Owner        Owner             `json:"owner"`
	Tracks       TrackRef          `json:"tracks"`
	ExternalURLs map[string]string `json:"external_urls,omitempty"`

	// TracksList is filled by the search handler when tracks are requested.
	TracksList []Track `json:"tracks_list,omitempty"`
}

// Page is one page of a Spotify paging object.
type Page[T any] struct {
	Href   string `json:"href"`
	Items  []T    `json:"items"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
	Total  int    `json:"total"`
}

// PlaylistSearch is the search envelope for type=playlist. Spotify returns
// null entries for playlists that are no longer available.
type PlaylistSearch struct {
	Playlists Page[*Playlist] `json:"playlists"`
}

type TrackSearch struct {
	Tracks Page[Track] `json:"tracks"`
}

type PlaylistItem struct {
	Track *Track `json:"track"`
}

type PlaylistTracks struct {
	Items []PlaylistItem `json:"items"`
	Total int            `json:"total,omitempty"`
}

type User struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Email       string  `json:"email,omitempty"`
	Country     string  `json:"country,omitempty"`
	Product     string  `json:"product,omitempty"`
	Images      []Image `json:"images,omitempty"`
}

// Compact drops unavailable playlists.
func (s PlaylistSearch) Compact() []Playlist {
	out := make([]Playlist, 0, len(s.Playlists.Items))
	for _, p := range s.Playlists.Items {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out
}

// List returns the tracks of the page, skipping local or removed entries.
func (p PlaylistTracks) List() []Track {
	out := make([]Track, 0, len(p.Items))
	for _, it := range p.Items {
		if it.Track != nil && it.Track.ID != "" {
			out = append(out, *it.Track)
		}
	}
	return out
}
