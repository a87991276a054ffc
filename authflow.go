package mtproto

import (
	"bufio"
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"strings"

	"github.com/ansel1/merry/v2"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/gomtproto/mtprotocore/internal/tl"
)

// These constructor ids are the public, documented wire ids for the
// interactive login RPCs; this core does not otherwise model the high-level
// schema (see internal/tl's package doc), so the handful AuthFlow needs are
// defined locally rather than pulled in wholesale.
const (
	crcAuthSendCode      uint32 = 0xa677244f
	crcAuthSignIn        uint32 = 0x8d52a951
	crcAuthCheckPassword uint32 = 0xd18b4d16
	crcAccountGetPassword uint32 = 0x548a30f5
)

type authSendCode struct {
	PhoneNumber string
	ApiID       int32
	ApiHash     string
}

func (authSendCode) CRC() uint32 { return crcAuthSendCode }
func (r authSendCode) Encode(b *tl.EncodeBuf) {
	b.Int(0) // flags
	b.String(r.PhoneNumber)
	b.Int(r.ApiID)
	b.String(r.ApiHash)
}

type authSignIn struct {
	PhoneNumber   string
	PhoneCodeHash string
	PhoneCode     string
}

func (authSignIn) CRC() uint32 { return crcAuthSignIn }
func (r authSignIn) Encode(b *tl.EncodeBuf) {
	b.Int(0) // flags
	b.String(r.PhoneNumber)
	b.String(r.PhoneCodeHash)
	b.String(r.PhoneCode)
}

type accountGetPassword struct{}

func (accountGetPassword) CRC() uint32            { return crcAccountGetPassword }
func (accountGetPassword) Encode(b *tl.EncodeBuf) {}

type authCheckPassword struct {
	PasswordHash []byte
}

func (authCheckPassword) CRC() uint32 { return crcAuthCheckPassword }
func (r authCheckPassword) Encode(b *tl.EncodeBuf) {
	b.StringBytes(r.PasswordHash)
}

// SaltedPassword is the narrow contract AuthFlow needs from whatever concrete
// type the caller's Decoder produces for account.password — the full SRP
// exchange (g, p, srp_B, srp_id) belongs to the high-level entity layer and
// is out of scope here; this core only performs the legacy salted-SHA256
// check the teacher implements.
type SaltedPassword interface {
	CurrentSalt() []byte
}

// PhoneCodeHash is the narrow contract AuthFlow needs from whatever concrete
// type the caller's Decoder produces for auth.sentCode.
type PhoneCodeHash interface {
	PhoneCodeHash() string
}

// AuthDataProvider supplies the phone number, login code, and (if 2FA is
// enabled) password interactively, the way the teacher's AuthDataProvider
// does.
type AuthDataProvider interface {
	PhoneNumber() (string, error)
	Code() (string, error)
	Password() (string, error)
}

// ScanfAuthDataProvider reads all three from stdin with fmt.Scanf, mirroring
// the teacher's ScanfAuthDataProvider. Passwords are echoed; prefer
// TerminalAuthDataProvider for interactive password entry.
type ScanfAuthDataProvider struct{}

func (ScanfAuthDataProvider) PhoneNumber() (string, error) {
	var v string
	fmt.Print("Enter phone number: ")
	_, err := fmt.Scanf("%s", &v)
	return v, err
}

func (ScanfAuthDataProvider) Code() (string, error) {
	var v string
	fmt.Print("Enter code: ")
	_, err := fmt.Scanf("%s", &v)
	return v, err
}

func (ScanfAuthDataProvider) Password() (string, error) {
	var v string
	fmt.Print("Enter password: ")
	_, err := fmt.Scanf("%s", &v)
	return v, err
}

// TerminalAuthDataProvider is like ScanfAuthDataProvider but reads the 2FA
// password with echo disabled, using golang.org/x/crypto/ssh/terminal.
type TerminalAuthDataProvider struct {
	reader *bufio.Reader
}

func (ap *TerminalAuthDataProvider) in() *bufio.Reader {
	if ap.reader == nil {
		ap.reader = bufio.NewReader(os.Stdin)
	}
	return ap.reader
}

func (ap *TerminalAuthDataProvider) PhoneNumber() (string, error) {
	fmt.Print("Enter phone number: ")
	line, err := ap.in().ReadString('\n')
	return strings.TrimSpace(line), err
}

func (ap *TerminalAuthDataProvider) Code() (string, error) {
	fmt.Print("Enter code: ")
	line, err := ap.in().ReadString('\n')
	return strings.TrimSpace(line), err
}

func (ap *TerminalAuthDataProvider) Password() (string, error) {
	fmt.Print("Enter password: ")
	b, err := terminal.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", merry.Wrap(err)
	}
	return string(b), nil
}

// AuthFlow runs the interactive user-login sequence against mainDC —
// send_code, sign_in, and (if the account has 2FA) check_password —
// generalizing the teacher's MTProto.Auth to the ClientGroup/DataCenter
// shape. It follows PHONE_MIGRATE_N/NETWORK_MIGRATE_N the way the teacher's
// Auth does, promoting the target DC to main before retrying send_code.
func AuthFlow(ctx context.Context, g *ClientGroup, cfg Config, data AuthDataProvider) (tl.Object, error) {
	phone, err := data.PhoneNumber()
	if err != nil {
		return nil, merry.Wrap(err)
	}

	dcID := g.mainDC
	var phoneCodeHash string
	for {
		resp, err := g.Send(ctx, dcID, authSendCode{PhoneNumber: phone, ApiID: cfg.ApiID, ApiHash: cfg.ApiHash})
		if err != nil {
			if target, kind, ok := IsMigrate(err); ok && (kind == "PHONE" || kind == "NETWORK") {
				if _, serr := g.SetMain(ctx, target); serr != nil {
					return nil, merry.Wrap(serr)
				}
				dcID = target
				continue
			}
			return nil, err
		}
		sc, ok := resp.(PhoneCodeHash)
		if !ok {
			return nil, WrongRespError(resp)
		}
		phoneCodeHash = sc.PhoneCodeHash()
		break
	}

	code, err := data.Code()
	if err != nil {
		return nil, merry.Wrap(err)
	}

	resp, err := g.Send(ctx, dcID, authSignIn{PhoneNumber: phone, PhoneCodeHash: phoneCodeHash, PhoneCode: code})
	if err != nil {
		if IsError(err, "SESSION_PASSWORD_NEEDED") {
			resp, err = checkPassword(ctx, g, dcID, data)
			if err != nil {
				return nil, err
			}
			return resp, nil
		}
		return nil, err
	}
	return resp, nil
}

func checkPassword(ctx context.Context, g *ClientGroup, dcID int32, data AuthDataProvider) (tl.Object, error) {
	resp, err := g.Send(ctx, dcID, accountGetPassword{})
	if err != nil {
		return nil, err
	}
	sp, ok := resp.(SaltedPassword)
	if !ok {
		return nil, WrongRespError(resp)
	}

	passwd, err := data.Password()
	if err != nil {
		return nil, merry.Wrap(err)
	}

	salt := sp.CurrentSalt()
	hash := sha256.Sum256(append(append(append([]byte{}, salt...), passwd...), salt...))
	return g.Send(ctx, dcID, authCheckPassword{PasswordHash: hash[:]})
}
