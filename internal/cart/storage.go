package cart

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/securecookie"
)

// CookieName is the cookie the serialized cart lives in.
const CookieName = "cart"

// CookieMaxAge is how long an untouched cart survives in the browser.
const CookieMaxAge = 7 * 24 * time.Hour

// Storage persists the serialized cart. Load returns (nil, nil) when nothing
// has been stored yet.
type Storage interface {
	Load() ([]byte, error)
	Save(data []byte) error
	Clear() error
}

// NewCookieCodec builds the securecookie codec for cart cookies. hashKey
// signs the value; a non-empty blockKey (16, 24 or 32 bytes) also encrypts it.
func NewCookieCodec(hashKey, blockKey []byte) (*securecookie.SecureCookie, error) {
	if len(hashKey) < 32 {
		return nil, fmt.Errorf("cart hash key must be at least 32 bytes, got %d", len(hashKey))
	}
	if len(blockKey) == 0 {
		blockKey = nil
	}
	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(int(CookieMaxAge.Seconds()))
	codec.SetSerializer(securecookie.NopEncoder{})
	return codec, nil
}

// CookieStorage keeps the cart in a signed cookie. It is bound to a single
// request/response pair; writes are visible to later Loads within the same
// request.
type CookieStorage struct {
	codec  *securecookie.SecureCookie
	r      *http.Request
	w      http.ResponseWriter
	secure bool

	written bool
	data    []byte
}

// NewCookieStorage returns storage for one HTTP exchange. secure sets the
// Secure attribute, which should be on whenever the site is served over TLS.
func NewCookieStorage(codec *securecookie.SecureCookie, w http.ResponseWriter, r *http.Request, secure bool) *CookieStorage {
	return &CookieStorage{codec: codec, r: r, w: w, secure: secure}
}

// Load decodes the cart cookie. A missing cookie is not an error; a cookie
// that fails verification is.
func (s *CookieStorage) Load() ([]byte, error) {
	if s.written {
		return s.data, nil
	}
	c, err := s.r.Cookie(CookieName)
	if errors.Is(err, http.ErrNoCookie) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var data []byte
	if err := s.codec.Decode(CookieName, c.Value, &data); err != nil {
		return nil, fmt.Errorf("decoding cart cookie: %w", err)
	}
	return data, nil
}

// Save encodes data into the cart cookie on the response.
func (s *CookieStorage) Save(data []byte) error {
	// With NopEncoder and a block key the codec encrypts its input in place.
	encoded, err := s.codec.Encode(CookieName, append([]byte(nil), data...))
	if err != nil {
		return fmt.Errorf("encoding cart cookie: %w", err)
	}
	http.SetCookie(s.w, s.cookie(encoded, int(CookieMaxAge.Seconds())))
	s.written, s.data = true, data
	return nil
}

// Clear expires the cart cookie.
func (s *CookieStorage) Clear() error {
	http.SetCookie(s.w, s.cookie("", -1))
	s.written, s.data = true, nil
	return nil
}

func (s *CookieStorage) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// MemoryStorage keeps the cart in process memory.
type MemoryStorage struct {
	mu   sync.Mutex
	data []byte
}

func (m *MemoryStorage) Load() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data, nil
}

func (m *MemoryStorage) Save(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStorage) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	return nil
}
