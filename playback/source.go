package playback

// MusicSource identifies the upstream service a track is playing from
type MusicSource string

const (
	SourceSpotify      MusicSource = "spotify"
	SourceMpris        MusicSource = "mpris"
	SourceWindowsMedia MusicSource = "windows_media"
	SourceYouTubeMusic MusicSource = "youtube_music"
)

// String returns the stable identifier used in cache keys and provider id maps
func (s MusicSource) String() string {
	return string(s)
}

// Valid reports whether s is one of the known sources
func (s MusicSource) Valid() bool {
	switch s {
	case SourceSpotify, SourceMpris, SourceWindowsMedia, SourceYouTubeMusic:
		return true
	default:
		return false
	}
}
