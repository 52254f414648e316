package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

const TypeSsh = "hexcore.provider.ssh"

// SshHop is one host in an ssh connection: the destination or a proxy (jump host).
type SshHop struct {
	User string `json:"user,omitempty"`
	Host string `json:"host"`
	Port string `json:"port,omitempty"`
}

// SshEndpt identifies a connection: a destination reached directly or through a proxy.
type SshEndpt struct {
	Dest  SshHop `json:"dest"`
	Proxy SshHop `json:"proxy,omitempty"`
}

func (k SshEndpt) HasProxy() bool {
	return k.Proxy.Host != ""
}

func (k SshEndpt) String() string {
	if k.HasProxy() {
		return fmt.Sprintf("%s@%s:%s%%%s@%s:%s",
			k.Dest.User, k.Dest.Host, k.Dest.Port,
			k.Proxy.User, k.Proxy.Host, k.Proxy.Port,
		)
	}
	return fmt.Sprintf("%s@%s:%s", k.Dest.User, k.Dest.Host, k.Dest.Port)
}

// SshClientCache keeps ssh clients open so that several remote providers on the same host share
// one connection. When full, the least recently used client is closed.
type SshClientCache struct {
	data             map[SshEndpt]sshClientCacheEntry
	max              int
	lock             sync.Mutex
	keyfilePasswords map[string]string
	sshHopPasswords  map[SshHop]string
	keyfileAuths     []ssh.AuthMethod
	keys             map[string][]byte
	dialTimeout      time.Duration
}

type sshClientCacheEntry struct {
	client   *ssh.Client
	lastUsed time.Time
}

func NewSshClientCache(max int) *SshClientCache {
	if max < 1 {
		max = 1
	}
	return &SshClientCache{
		data:             make(map[SshEndpt]sshClientCacheEntry),
		max:              max,
		keyfilePasswords: map[string]string{},
		sshHopPasswords:  map[SshHop]string{},
		keys:             map[string][]byte{},
		dialTimeout:      30 * time.Second,
	}
}

// DefaultSshClientCache is used by ssh backends that were not given a cache.
var DefaultSshClientCache = NewSshClientCache(5)

func (cache *SshClientCache) Get(endpt SshEndpt) (client *ssh.Client, err error) {
	cache.lock.Lock()
	defer cache.lock.Unlock()

	endpt.Dest = completeHop(endpt.Dest)
	if endpt.HasProxy() {
		endpt.Proxy = completeHop(endpt.Proxy)
	}

	e, ok := cache.data[endpt]
	if ok && cache.isValid(e.client) {
		e.lastUsed = time.Now()
		cache.data[endpt] = e
		return e.client, nil
	}
	if ok {
		dbg("ssh client for %s is no longer valid; reconnecting", endpt)
		e.client.Close()
		delete(cache.data, endpt)
	}

	client, err = cache.add(endpt)
	return client, prefixWithSshEndpt(endpt, "SshClientCache.Get", err)
}

func prefixWithSshEndpt(endpt SshEndpt, msg string, err error) error {
	if err == nil {
		return nil
	}
	if msg != "" {
		return fmt.Errorf("%s: %s: %w", endpt, msg, err)
	}
	return fmt.Errorf("%s: %w", endpt, err)
}

func (cache *SshClientCache) isValid(client *ssh.Client) bool {
	// See https://datatracker.ietf.org/doc/html/draft-ssh-global-requests-ok-00 section 4.1 (active keepalive)
	_, _, err := client.SendRequest("keep-alive@hexcore", true, []byte("keep-alive"))
	return err == nil
}

func (cache *SshClientCache) add(endpt SshEndpt) (*ssh.Client, error) {
	if len(cache.data) >= cache.max {
		cache.rmLeastRecentlyUsed()
	}

	c, err := cache.dial(endpt)
	if err != nil {
		return nil, err
	}
	cache.data[endpt] = sshClientCacheEntry{client: c, lastUsed: time.Now()}
	return c, nil
}

func (cache *SshClientCache) rmLeastRecentlyUsed() {
	var minK SshEndpt
	var minTime time.Time
	for k, v := range cache.data {
		if minTime.IsZero() || v.lastUsed.Before(minTime) {
			minTime = v.lastUsed
			minK = k
		}
	}

	if e, ok := cache.data[minK]; ok {
		e.client.Close()
		delete(cache.data, minK)
	}
}

func (cache *SshClientCache) dial(endpt SshEndpt) (*ssh.Client, error) {
	dbg("SshClientCache: creating new ssh client for %s", endpt)

	destConf := &ssh.ClientConfig{
		User:            endpt.Dest.User,
		Auth:            cache.getAuths(endpt.Dest),
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         cache.dialTimeout,
	}
	addr := net.JoinHostPort(endpt.Dest.Host, endpt.Dest.Port)

	if !endpt.HasProxy() {
		return ssh.Dial("tcp", addr, destConf)
	}

	proxyConf := &ssh.ClientConfig{
		User:            endpt.Proxy.User,
		Auth:            cache.getAuths(endpt.Proxy),
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         cache.dialTimeout,
	}
	proxyClient, err := ssh.Dial("tcp", net.JoinHostPort(endpt.Proxy.Host, endpt.Proxy.Port), proxyConf)
	if err != nil {
		return nil, err
	}

	conn, err := proxyClient.Dial("tcp", addr)
	if err != nil {
		proxyClient.Close()
		return nil, err
	}

	ncc, chans, reqs, err := ssh.NewClientConn(conn, addr, destConf)
	if err != nil {
		conn.Close()
		proxyClient.Close()
		return nil, err
	}
	return ssh.NewClient(ncc, chans, reqs), nil
}

func completeHop(h SshHop) SshHop {
	if h.User == "" {
		if runtime.GOOS == "windows" {
			h.User = os.Getenv("USERNAME")
		} else {
			h.User = os.Getenv("USER")
		}
	}

	if h.Port == "" {
		h.Port = "22"
	}

	return h
}

func (cache *SshClientCache) getAuths(hop SshHop) []ssh.AuthMethod {
	auths := cache.getKeyfileAuths()
	if pw, ok := cache.sshHopPasswords[hop]; ok {
		dbg("found password for ssh hop %v", hop)
		auths = append(auths[:len(auths):len(auths)], ssh.Password(pw))
	}
	return auths
}

func (cache *SshClientCache) SetSshHopPassword(user, host, port, password string) {
	cache.lock.Lock()
	defer cache.lock.Unlock()
	h := completeHop(SshHop{User: user, Host: host, Port: port})
	cache.sshHopPasswords[h] = password
}

func (cache *SshClientCache) SetKeyfilePassword(filename, password string) {
	cache.lock.Lock()
	defer cache.lock.Unlock()
	cache.keyfilePasswords[filename] = password
	cache.keyfileAuths = nil
}

func (cache *SshClientCache) AddKeyFromFile(filename string, path string) error {
	key, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	cache.lock.Lock()
	defer cache.lock.Unlock()
	cache.keys[filename] = key
	cache.keyfileAuths = nil
	return nil
}

func (cache *SshClientCache) getKeyfileAuths() []ssh.AuthMethod {
	if cache.keyfileAuths == nil {
		cache.makeKeyfileAuths()
	}
	return cache.keyfileAuths
}

func (cache *SshClientCache) makeKeyfileAuths() {
	dbg("SshClientCache: building auths")

	signers, err := sshAgentSigners()
	if err != nil {
		dbg("SshClientCache: no ssh agent: %v", err)
	}

	for fname, key := range cache.keys {
		s, err := cache.signerForKey(fname, key)
		if err != nil {
			dbg("SshClientCache: skipping key %s: %v", fname, err)
			continue
		}
		signers = append(signers, s)
	}

	cache.keyfileAuths = []ssh.AuthMethod{ssh.PublicKeys(signers...)}
}

func (cache *SshClientCache) signerForKey(filename string, key []byte) (ssh.Signer, error) {
	if pw, ok := cache.keyfilePasswords[filename]; ok {
		return ssh.ParsePrivateKeyWithPassphrase(key, []byte(pw))
	}
	return ssh.ParsePrivateKey(key)
}

func sshAgentSigners() ([]ssh.Signer, error) {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil, fmt.Errorf("SSH_AUTH_SOCK is not set")
	}
	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil, err
	}
	return agent.NewClient(conn).Signers()
}

// Keys returns the endpoints that currently have a client.
func (cache *SshClientCache) Keys() []SshEndpt {
	cache.lock.Lock()
	defer cache.lock.Unlock()

	keys := make([]SshEndpt, 0, len(cache.data))
	for k := range cache.data {
		keys = append(keys, k)
	}
	return keys
}

// Close closes every cached client.
func (cache *SshClientCache) Close() {
	cache.lock.Lock()
	defer cache.lock.Unlock()
	for k, e := range cache.data {
		e.client.Close()
		delete(cache.data, k)
	}
}

// A Runner runs a shell command on a remote host, feeding it stdin and returning its stdout.
type Runner interface {
	Run(cmd string, stdin []byte) ([]byte, error)
}

// SshShell is the remote shell commands are run with.
var SshShell = "sh"

type sshRunner struct {
	cache *SshClientCache
	endpt SshEndpt
}

func (r sshRunner) Run(cmd string, stdin []byte) ([]byte, error) {
	client, err := r.cache.Get(r.endpt)
	if err != nil {
		return nil, err
	}
	session, err := client.NewSession()
	if err != nil {
		return nil, prefixWithSshEndpt(r.endpt, "NewSession", err)
	}
	defer session.Close()

	var stderr bytes.Buffer
	session.Stderr = &stderr
	if stdin != nil {
		session.Stdin = bytes.NewReader(stdin)
	}
	out, err := session.Output(SshShell + " -c " + shellQuote(cmd))
	if err != nil {
		return out, fmt.Errorf("%s: %w: %s", cmd, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Ssh is a backend over a file on a remote host. It reads and writes through dd on the remote
// side, so the host needs a POSIX shell with stat and dd.
type Ssh struct {
	endpt  SshEndpt
	path   string
	runner Runner
	size   uint64
}

func NewSsh(cache *SshClientCache, endpt SshEndpt, path string) *Ssh {
	if cache == nil {
		cache = DefaultSshClientCache
	}
	return &Ssh{endpt: endpt, path: path, runner: sshRunner{cache, endpt}}
}

// NewSshWithRunner builds an ssh backend that runs its commands through r.
func NewSshWithRunner(r Runner, endpt SshEndpt, path string) *Ssh {
	return &Ssh{endpt: endpt, path: path, runner: r}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (s *Ssh) Open() error {
	out, err := s.runner.Run("stat -L -c %s "+shellQuote(s.path), nil)
	if err != nil {
		return err
	}
	size, err := strconv.ParseUint(strings.TrimSpace(string(out)), 10, 64)
	if err != nil {
		return fmt.Errorf("%s: unexpected size '%s': %w", s.path, strings.TrimSpace(string(out)), err)
	}
	s.size = size
	dbg("opened remote file %s:%s of %d bytes", s.endpt, s.path, size)
	return nil
}

func (s *Ssh) Close() error { return nil }

func (s *Ssh) Size() uint64 { return s.size }

func (s *Ssh) Capabilities() Capabilities {
	return Readable | Writable | Resizable | Savable
}

func (s *Ssh) TypeName() string { return TypeSsh }

func (s *Ssh) Name() string {
	return s.endpt.Dest.Host + ":" + path.Base(s.path)
}

func (s *Ssh) ReadAt(b []byte, off int64) (int, error) {
	if uint64(off) >= s.size {
		return 0, io.EOF
	}
	cmd := fmt.Sprintf("dd if=%s bs=65536 iflag=skip_bytes,count_bytes skip=%d count=%d 2>/dev/null",
		shellQuote(s.path), off, len(b))
	out, err := s.runner.Run(cmd, nil)
	if err != nil {
		return 0, err
	}
	n := copy(b, out)
	if n < len(b) {
		return n, io.EOF
	}
	return n, nil
}

func (s *Ssh) WriteAt(b []byte, off int64) (int, error) {
	cmd := fmt.Sprintf("dd of=%s bs=65536 oflag=seek_bytes seek=%d conv=notrunc 2>/dev/null",
		shellQuote(s.path), off)
	if _, err := s.runner.Run(cmd, b); err != nil {
		return 0, err
	}
	if end := uint64(off) + uint64(len(b)); end > s.size {
		s.size = end
	}
	return len(b), nil
}

func (s *Ssh) Truncate(size uint64) error {
	if _, err := s.runner.Run(fmt.Sprintf("truncate -s %d %s", size, shellQuote(s.path)), nil); err != nil {
		return err
	}
	s.size = size
	return nil
}

type sshConfig struct {
	Endpoint SshEndpt `json:"endpoint"`
	Path     string   `json:"path"`
}

func (s *Ssh) MarshalConfig() ([]byte, error) {
	return json.Marshal(sshConfig{Endpoint: s.endpt, Path: s.path})
}

func (s *Ssh) UnmarshalConfig(data []byte) error {
	var c sshConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}
	s.endpt, s.path = c.Endpoint, c.Path
	if r, ok := s.runner.(sshRunner); ok {
		s.runner = sshRunner{r.cache, c.Endpoint}
	} else if s.runner == nil {
		s.runner = sshRunner{DefaultSshClientCache, c.Endpoint}
	}
	return nil
}
