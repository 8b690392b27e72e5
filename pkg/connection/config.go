package connection

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"

	"github.com/stranddb/strand.go/internal/codec"
	"github.com/stranddb/strand.go/pkg/logger"
	logslog "github.com/stranddb/strand.go/pkg/logger/slog"
)

// Config carries everything an HTTPConnection needs. Construct it with
// NewConfig for sensible defaults, or fill the fields directly.
type Config struct {
	URL         url.URL
	BaseURL     string
	APIKey      string
	Marshaler   codec.Marshaler
	Unmarshaler codec.Unmarshaler
	Logger      logger.Logger
}

// NewConfig creates a Config for the Strand endpoint at u, such as
// "https://myaccount.strand.example:8443". The wire codec defaults to
// JSON and logs go to stdout at slog's default level.
func NewConfig(u *url.URL, apiKey string) *Config {
	c := codec.NewJSON()
	return &Config{
		URL:         *u,
		BaseURL:     fmt.Sprintf("%s://%s", u.Scheme, u.Host),
		APIKey:      apiKey,
		Marshaler:   c,
		Unmarshaler: c,
		Logger:      logslog.New(slog.NewTextHandler(os.Stdout, nil)),
	}
}
