package mtproto

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/gomtproto/mtprotocore/internal/logging"
	"github.com/gomtproto/mtprotocore/internal/mtcrypto"
	"github.com/gomtproto/mtprotocore/internal/tl"
)

// NewClient builds a ClientGroup with sensible defaults: a SimpleLogHandler
// and a FileStore next to the running executable, the way the teacher's
// NewMTProto wraps NewMTProtoExt. The returned group's RSA key register is
// empty; callers must Add/AddPEM Telegram's published production keys
// before dialing (this core doesn't embed unverifiable key material).
func NewClient(apiID int32, apiHash string, decoder tl.Decoder, rsaKeys *mtcrypto.PublicRsaKeyRegister) *ClientGroup {
	log := logging.Logger{Handler: &logging.SimpleLogHandler{}}

	exPath := "."
	if ex, err := os.Executable(); err != nil {
		log.Error(err, "failed to get executable file path")
	} else {
		exPath = filepath.Dir(ex)
	}

	cfg := Config{
		ApiID:   apiID,
		ApiHash: apiHash,
		InitConnectionParams: InitConnectionParams{
			AppVersion:     "0.0.1",
			DeviceModel:    "Unknown",
			SystemVersion:  runtime.GOOS + "/" + runtime.GOARCH,
			LangCode:       "en",
			SystemLangCode: "en",
		},
		Store: NewFileStore(filepath.Join(exPath, "tg.session")),
	}
	return NewClientGroup(cfg, decoder, rsaKeys, log)
}
