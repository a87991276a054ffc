package mtproto

import (
	"time"

	"github.com/gomtproto/mtprotocore/internal/auth"
)

// InitConnectionParams mirrors spec.md §6's init_connection_params. The
// values are carried in Config only; the router does not send an
// InitConnection request with them.
type InitConnectionParams struct {
	AppVersion     string
	DeviceModel    string
	SystemVersion  string
	LangCode       string
	LangPack       string
	SystemLangCode string
}

func defaultInitConnectionParams() InitConnectionParams {
	return InitConnectionParams{
		AppVersion:     "1.0",
		DeviceModel:    "mtprotocore",
		SystemVersion:  "unknown",
		LangCode:       "en",
		LangPack:       "",
		SystemLangCode: "en",
	}
}

// Config is the client group's construction-time configuration, following
// the teacher's AppConfig shape extended with spec.md §6's enumerated
// fields.
type Config struct {
	ApiID   int32
	ApiHash string

	BotToken string // stored only; nothing in this package reads it or selects a login path from it

	InitConnectionParams InitConnectionParams

	ConnectionRetry auth.BackoffSpec
	AuthRetry       auth.BackoffSpec

	GzipThreshold int

	MainDC DataCenter

	Store StoreLayout
}

// DefaultConnectionRetry is spec.md §6's documented default: fixed 5s,
// unbounded.
var DefaultConnectionRetry = auth.BackoffSpec{Delay: 5 * time.Second, MaxRetries: 0}

// withDefaults fills unset fields (NewClientGroup applies it to every
// Config), without mutating the caller's value.
func (c Config) withDefaults() Config {
	if c.InitConnectionParams == (InitConnectionParams{}) {
		c.InitConnectionParams = defaultInitConnectionParams()
	}
	if c.ConnectionRetry == (auth.BackoffSpec{}) {
		c.ConnectionRetry = DefaultConnectionRetry
	}
	if c.AuthRetry == (auth.BackoffSpec{}) {
		c.AuthRetry = auth.DefaultBackoff
	}
	if c.GzipThreshold <= 0 {
		c.GzipThreshold = 16384
	}
	if c.MainDC == (DataCenter{}) {
		c.MainDC = DataCenter{ID: 2, Kind: DcRegular, Addr: "149.154.167.50:443"}
	}
	if c.Store == nil {
		c.Store = NewMemoryStore()
	}
	return c
}
