package protocol

import (
	"strconv"
	"strings"

	"github.com/nkyo/gocached/cache"
)

// CacheOps is the subset of *cache.Cache the Interpreter drives. It
// exists so the interpreter can be exercised against a fake in tests
// without a live Cache.
type CacheOps interface {
	Get(key string) ([]byte, uint32, error)
	Set(key string, value []byte, flags uint32, expirationSeconds int64) error
	Add(key string, value []byte, flags uint32, expirationSeconds int64) error
	Replace(key string, value []byte, flags uint32, expirationSeconds int64) error
	Append(key string, data []byte) error
	Prepend(key string, data []byte) error
	Delete(key string) error
	Incr(key string, delta uint64) (uint64, error)
	Decr(key string, delta uint64) (uint64, error)
	Touch(key string, expirationSeconds int64) error
	Stats() map[string]string
	Flush() error
	FlushAll(delaySeconds int64) error
	Version() string
	Verbosity(level int32)
}

var _ CacheOps = (*cache.Cache)(nil)

// Interpreter binds a parsed (command, args, payload) to a CacheOps
// operation and formats the wire response.
type Interpreter struct {
	cache CacheOps
}

// NewInterpreter builds an Interpreter backed by c.
func NewInterpreter(c CacheOps) *Interpreter {
	return &Interpreter{cache: c}
}

// Handle runs verb with args (positional tokens already split on the
// wire, keyed by commandTable's param names) and, for storage
// commands, payload. It returns the exact response string to write
// back (without trailing CRLF; the caller appends framing).
//
// verb must already be a recognized command name; callers route
// "quit" and unknown verbs before reaching Handle (see Parser).
func (in *Interpreter) Handle(verb string, args map[string]string, payload []byte) string {
	// Canonicalize aliased verbs (flush_all -> flush, decr -> incr);
	// the original verb still decides direction and store variant.
	op := verb
	if s, ok := lookup(verb); ok && s.Alias != "" {
		op = s.Alias
	}

	switch op {
	case "get":
		return in.handleGet(args["key"])
	case "set", "add", "replace":
		return in.handleStore(verb, args, payload)
	case "append":
		return in.handleConcat(args["key"], payload, false)
	case "prepend":
		return in.handleConcat(args["key"], payload, true)
	case "delete":
		return in.handleDelete(args["key"])
	case "incr":
		return in.handleIncrDecr(args["key"], args["delta"], verb != "decr")
	case "touch":
		return in.handleTouch(args["key"], args["exptime"])
	case "stats":
		return in.handleStats()
	case "flush":
		return in.handleFlush(args["delay"])
	case "version":
		return formatVersion(in.cache.Version())
	case "verbosity":
		return in.handleVerbosity(args["level"])
	default:
		return "ERROR"
	}
}

func (in *Interpreter) handleGet(key string) string {
	value, flags, err := in.cache.Get(key)
	if err != nil {
		return formatGet(key, 0, nil, false)
	}
	return formatGet(key, flags, value, true)
}

// formatGet renders the get response: "END" for an absent record, or
// the VALUE block for a live one. Non-string values must already have
// been JSON-serialized by the caller before reaching here; the wire
// layer only ever sees bytes.
func formatGet(key string, flags uint32, value []byte, present bool) string {
	if !present {
		return "END"
	}
	var b strings.Builder
	b.WriteString("VALUE ")
	b.WriteString(key)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(uint64(flags), 10))
	b.WriteByte(' ')
	b.WriteString(strconv.Itoa(len(value)))
	b.WriteString("\r\n")
	b.Write(value)
	b.WriteString("\r\nEND")
	return b.String()
}

func (in *Interpreter) handleStore(verb string, args map[string]string, payload []byte) string {
	flags, err := strconv.ParseUint(args["flags"], 10, 32)
	if err != nil {
		return "CLIENT_ERROR bad command line format"
	}
	exptime, err := strconv.ParseInt(args["exptime"], 10, 64)
	if err != nil {
		return "CLIENT_ERROR bad command line format"
	}

	key := args["key"]
	var storeErr error
	switch verb {
	case "set":
		storeErr = in.cache.Set(key, payload, uint32(flags), exptime)
	case "add":
		storeErr = in.cache.Add(key, payload, uint32(flags), exptime)
	case "replace":
		storeErr = in.cache.Replace(key, payload, uint32(flags), exptime)
	}

	return storeResponse(storeErr)
}

func (in *Interpreter) handleConcat(key string, payload []byte, before bool) string {
	var err error
	if before {
		err = in.cache.Prepend(key, payload)
	} else {
		err = in.cache.Append(key, payload)
	}
	return storeResponse(err)
}

func storeResponse(err error) string {
	switch {
	case err == nil:
		return "STORED"
	case isNotStored(err):
		return "NOT_STORED"
	default:
		return "SERVER_ERROR " + err.Error()
	}
}

func (in *Interpreter) handleDelete(key string) string {
	if err := in.cache.Delete(key); err != nil {
		return "NOT_FOUND"
	}
	return "DELETED"
}

func (in *Interpreter) handleIncrDecr(key, deltaStr string, positive bool) string {
	delta, err := strconv.ParseUint(deltaStr, 10, 64)
	if err != nil {
		return "CLIENT_ERROR invalid numeric delta argument"
	}

	var (
		next  uint64
		opErr error
	)
	if positive {
		next, opErr = in.cache.Incr(key, delta)
	} else {
		next, opErr = in.cache.Decr(key, delta)
	}

	switch {
	case opErr == nil:
		return formatIncr(next)
	case isNonNumeric(opErr):
		return "CLIENT_ERROR cannot increment or decrement non-numeric value"
	case isCacheMiss(opErr):
		return "NOT_FOUND"
	default:
		return "SERVER_ERROR " + opErr.Error()
	}
}

// formatIncr renders the incr-reader response: the numeric value as
// an ASCII decimal string.
func formatIncr(value uint64) string {
	return strconv.FormatUint(value, 10)
}

func (in *Interpreter) handleTouch(key, exptimeStr string) string {
	exptime, err := strconv.ParseInt(exptimeStr, 10, 64)
	if err != nil {
		return "CLIENT_ERROR bad command line format"
	}
	if err := in.cache.Touch(key, exptime); err != nil {
		return "NOT_FOUND"
	}
	return "TOUCHED"
}

func (in *Interpreter) handleStats() string {
	return formatStats(in.cache.Stats())
}

// formatStats renders the stats-reader response: one STATS line per
// entry, terminated by END.
func formatStats(stats map[string]string) string {
	var b strings.Builder
	for k, v := range stats {
		b.WriteString("STATS ")
		b.WriteString(k)
		b.WriteByte(' ')
		b.WriteString(v)
		b.WriteString("\r\n")
	}
	b.WriteString("END")
	return b.String()
}

// formatVersion renders the version-reader response.
func formatVersion(version string) string {
	return "VERSION " + version
}

func (in *Interpreter) handleFlush(delayStr string) string {
	if delayStr == "" {
		_ = in.cache.Flush()
		return "OK"
	}
	delay, err := strconv.ParseInt(delayStr, 10, 64)
	if err != nil {
		return "CLIENT_ERROR bad command line format"
	}
	_ = in.cache.FlushAll(delay)
	return "OK"
}

func (in *Interpreter) handleVerbosity(levelStr string) string {
	level, err := strconv.ParseInt(levelStr, 10, 32)
	if err != nil {
		return "CLIENT_ERROR bad command line format"
	}
	in.cache.Verbosity(int32(level))
	return "OK"
}
