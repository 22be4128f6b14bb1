package logcolors

// ANSI color codes for log prefixes
const (
	Reset  = "\033[0m"
	Green  = "\033[32m"
	Blue   = "\033[34m"
	Purple = "\033[35m"
	Cyan   = "\033[36m"

	// Bright variants for more color variety
	BrightGreen   = "\033[92m"
	BrightBlue    = "\033[94m"
	BrightMagenta = "\033[95m"
	BrightCyan    = "\033[96m"

	Red       = "\033[31m"
	BrightRed = "\033[91m"
)

// Cache-related log prefixes
const (
	LogCacheInit       = Blue + "[Cache:Init]" + Reset
	LogCache           = Blue + "[Cache]" + Reset
	LogCacheLyrics     = Green + "[Cache:Lyrics]" + Reset
	LogCacheCleanup    = Blue + "[Cache:Cleanup]" + Reset
	LogCacheCheckpoint = Blue + "[Cache:Checkpoint]" + Reset
	LogTokenStore      = Cyan + "[TokenStore]" + Reset
)

// Rate limiting log prefixes
const (
	LogRateLimit = Purple + "[RateLimit]" + Reset
	LogAPIKey    = Purple + "[APIKey]" + Reset
)

// CircuitBreakerPrefix returns a colored circuit breaker prefix with the given name
func CircuitBreakerPrefix(name string) string {
	return Purple + "[CircuitBreaker:" + name + "]" + Reset
}

// providerColors rotate based on a hash of the provider name
var providerColors = []string{
	Green, Blue, Purple, Cyan, Red,
	BrightGreen, BrightBlue, BrightMagenta, BrightCyan, BrightRed,
}

// Provider returns a colored provider name for log messages.
// Same provider name always gets the same color
func Provider(name string) string {
	hash := 0
	for _, c := range name {
		hash += int(c)
	}
	color := providerColors[hash%len(providerColors)]
	return color + name + Reset
}

// Server/Init log prefixes
const (
	LogServer = Green + "[Server]" + Reset
	LogConfig = Cyan + "[Config]" + Reset
	LogStats  = Blue + "[Stats]" + Reset
)

// Sync log prefixes
const (
	LogEngine  = BrightGreen + "[Engine]" + Reset
	LogPoller  = BrightBlue + "[Poller]" + Reset
	LogFetcher = BrightMagenta + "[Fetcher]" + Reset
	LogDisplay = BrightCyan + "[Display]" + Reset
)

// Provider service log prefixes
const (
	LogRequest        = Purple + "[Request]" + Reset
	LogSearch         = Blue + "[Search]" + Reset
	LogHTTP           = Cyan + "[HTTP]" + Reset
	LogMatch          = Green + "[Match]" + Reset
	LogLyrics         = Blue + "[Lyrics]" + Reset
	LogAuthError      = Purple + "[Auth Error]" + Reset
	LogCircuitBreaker = Purple + "[CircuitBreaker]" + Reset
	LogFallback       = Cyan + "[Fallback]" + Reset
	LogBestMatch      = Green + "[Best Match]" + Reset
	LogWarning        = Red + "[Warning]" + Reset
)

// Token log prefixes
const (
	LogAccessToken = Cyan + "[Access Token]" + Reset
	LogSecret      = Cyan + "[Secret]" + Reset
	LogServerTime  = Cyan + "[Server Time]" + Reset
)
