package app

import "github.com/spf13/pflag"

// RegisterFlags registers all CLI flags on the given FlagSet
func RegisterFlags(flags *pflag.FlagSet) {
	RegisterServerFlags(flags)
	RegisterIndexFlags(flags)
}

// RegisterServerFlags registers the transport and authentication flags
func RegisterServerFlags(flags *pflag.FlagSet) {
	flags.StringP("transport", "t", "", "Transport type: stdio or sse")
	flags.StringP("host", "H", "", "Host for SSE transport")
	flags.IntP("port", "p", 0, "Port for SSE transport")
	flags.StringP("auth-type", "a", "", "Authentication type: none, basic, or apikey")
	flags.StringP("auth-basic-username", "u", "", "Basic auth username")
	flags.StringP("auth-basic-password", "P", "", "Basic auth password")
	flags.StringSliceP("auth-api-keys", "k", nil, "API keys (comma-separated)")
}

// RegisterIndexFlags registers the index, sync and search flags
func RegisterIndexFlags(flags *pflag.FlagSet) {
	flags.StringP("index-base-dir", "d", "", "Directory holding the search index and sync manifest")
	flags.StringSliceP("index-repositories", "r", nil, "Repositories to index as 'path' or 'id=path' (comma-separated)")
	flags.Duration("index-sync-interval", 0, "Interval between background sync passes")
	flags.Duration("index-sync-timeout", 0, "Time to wait for the index lock")
	flags.Bool("index-watch", false, "Sync a repository as soon as its refs change")
	flags.Int64("index-max-blob-size", 0, "Largest blob indexed, in bytes")
	flags.Int("index-batch-size", 0, "Mutations per index batch")
	flags.Int("index-cache-size", 0, "Normalized blobs kept in memory")
	flags.String("index-blob-key-scheme", "", "Blob document keys: repository or revision")
	flags.Int("search-per-page", 0, "Default results per page")
	flags.Int("search-max-per-page", 0, "Largest page size a request may ask for")
}
