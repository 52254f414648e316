package main

import (
	"bytes"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/jeffwilliams/hexcore/internal/provider"
)

// Location is a file named on the command line. It might be remote (on another host) or local.
type Location struct {
	endpt provider.SshEndpt
	path  string
}

func ParseLocation(s string) (l Location, err error) {
	if isWindowsPath(s) {
		l.path = s
		return
	}

	// Grammar:
	// Location -> Dest? Path | Dest Proxy Path
	// Dest -> (User '@')? Host (':' Port)? ':'
	// Proxy -> '%' (User '@')? Host (':' Port)? ':'

	parseHop := func(s string) (hop provider.SshHop, rest string) {
		i := 0

		consumePrefix := func() (r string) {
			r = s[0:i]
			s = s[i+1:]
			i = 0
			return
		}

		sawColon := false

		for i < len(s) {
			r := s[i]
			if r == '@' && !sawColon {
				hop.User = consumePrefix()
				continue
			} else if r == ':' {
				sawColon = true
				if hop.Host == "" {
					hop.Host = consumePrefix()
					continue
				} else if hop.Port == "" && isPort(s[:i]) {
					hop.Port = consumePrefix()
					continue
				}
			}
			i++
		}
		rest = s
		return
	}

	pctIndex := strings.Index(s, "%")
	if pctIndex >= 0 {
		if pctIndex == 0 {
			err = fmt.Errorf("a location with a proxy must also have a final destination")
			return
		}
		l.endpt.Dest, _ = parseHop(s[:pctIndex] + ":")
		l.endpt.Proxy, l.path = parseHop(s[pctIndex+1:])
		if l.endpt.Proxy.Host == "" {
			err = fmt.Errorf("the proxy of '%s' has no host", s)
		}
		return
	}

	l.endpt.Dest, l.path = parseHop(s)
	if l.IsRemote() && l.path == "" {
		err = fmt.Errorf("remote location '%s' has no path", s)
	}
	return
}

func isPort(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isWindowsPath(path string) bool {
	return len(path) >= 3 &&
		((path[0] >= 'A' && path[0] <= 'Z') || (path[0] >= 'a' && path[0] <= 'z')) &&
		path[1] == ':' && path[2] == '\\'
}

func (l Location) Path() string {
	return l.path
}

func (l Location) Endpoint() provider.SshEndpt {
	return l.endpt
}

func (l Location) IsRemote() bool {
	return l.endpt.Dest.Host != ""
}

func (l Location) HasProxy() bool {
	return l.endpt.HasProxy()
}

func (l Location) String() string {
	if !l.IsRemote() {
		return l.path
	}

	hop := func(buf *bytes.Buffer, h provider.SshHop) {
		if h.User != "" {
			fmt.Fprintf(buf, "%s@", h.User)
		}
		buf.WriteString(h.Host)
		if h.Port != "" {
			fmt.Fprintf(buf, ":%s", h.Port)
		}
	}

	var buf bytes.Buffer
	hop(&buf, l.endpt.Dest)
	if l.HasProxy() {
		buf.WriteRune('%')
		hop(&buf, l.endpt.Proxy)
	}
	buf.WriteRune(':')
	buf.WriteString(l.path)
	return buf.String()
}

// Base returns the last element of the path.
func (l Location) Base() string {
	// Remote paths keep their slashes even on windows.
	base := filepath.Base
	if l.IsRemote() {
		base = path.Base
	}
	return base(l.path)
}

// Backend returns the provider backend that reads the location: ssh for remote files, a record
// parser for Intel HEX and Motorola S-record files, and a plain file otherwise.
func (l Location) Backend(readOnly bool) provider.Backend {
	if l.IsRemote() {
		return provider.NewSsh(nil, l.endpt, l.path)
	}

	switch strings.ToLower(filepath.Ext(l.path)) {
	case ".hex", ".ihex", ".ihx":
		return provider.NewIntelHex(l.path)
	case ".srec", ".s19", ".s28", ".s37", ".mot":
		return provider.NewSrec(l.path)
	}
	if strings.HasPrefix(l.path, "/dev/") {
		return provider.NewDisk(l.path)
	}
	return provider.NewFile(l.path, readOnly)
}
