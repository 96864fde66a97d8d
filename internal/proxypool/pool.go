package proxypool

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/ohmynofan/naoris-device-bot/internal/domain/model"
)

var supportedSchemes = []string{"http://", "https://", "socks5://"}

// Pool is immutable after Load and safe to share between sessions.
type Pool struct {
	proxies []string
}

func New(proxies []string) *Pool {
	cp := make([]string, len(proxies))
	copy(cp, proxies)
	return &Pool{proxies: cp}
}

func Load(path string) (*Pool, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &model.ConfigError{Source: path, Err: err}
	}
	defer file.Close()

	var proxies []string
	lineNo := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		proxyURL, err := normalize(line)
		if err != nil {
			return nil, &model.ConfigError{Source: path, Err: fmt.Errorf("line %d: %w", lineNo, err)}
		}
		proxies = append(proxies, proxyURL)
	}
	if err := scanner.Err(); err != nil {
		return nil, &model.ConfigError{Source: path, Err: err}
	}
	return &Pool{proxies: proxies}, nil
}

func normalize(p string) (string, error) {
	if !strings.Contains(p, "://") {
		p = "http://" + p
	}
	supported := false
	for _, s := range supportedSchemes {
		if strings.HasPrefix(strings.ToLower(p), s) {
			supported = true
			break
		}
	}
	if !supported {
		return "", fmt.Errorf("unsupported proxy scheme in %q", Display(p))
	}
	u, err := url.Parse(p)
	if err != nil {
		return "", fmt.Errorf("invalid proxy url: %w", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("proxy %q has no host", Display(p))
	}
	return p, nil
}

func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.proxies)
}

// Assign returns the proxy for the i-th session, or false when the pool is
// empty.
func (p *Pool) Assign(i int) (string, bool) {
	if p.Len() == 0 || i < 0 {
		return "", false
	}
	return p.proxies[i%len(p.proxies)], true
}

// Display strips the scheme and credentials so a proxy can be logged.
func Display(proxyURL string) string {
	if proxyURL == "" {
		return "No Proxy"
	}
	if u, err := url.Parse(proxyURL); err == nil && u.Host != "" {
		return u.Host
	}
	s := proxyURL
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if at := strings.LastIndex(s, "@"); at != -1 {
		s = s[at+1:]
	}
	return s
}
