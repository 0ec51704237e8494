package cache

import "strconv"

// PlaylistSearchKey identifies a playlist search. The includeTracks flag is
// always part of the key because the two response shapes differ.
func PlaylistSearchKey(query string, limit int, includeTracks bool) string {
	flag := "noTracks"
	if includeTracks {
		flag = "withTracks"
	}
	return query + "|" + strconv.Itoa(limit) + "|" + flag
}

// PlaylistTracksKey identifies the track listing of one playlist.
func PlaylistTracksKey(playlistID string) string {
	return "tracks|" + playlistID
}

// TrackSearchKey identifies a track search.
func TrackSearchKey(query string) string {
	return "track|" + query
}
