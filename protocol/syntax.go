// Package protocol implements the memcached ASCII wire protocol: the
// static command table (this file), the interpreter that binds a
// parsed command to a cache.Cache operation, and the per-connection
// line parser that turns raw bytes into parsed commands.
package protocol

// paramKind describes how a single positional token on the wire is
// parsed.
type paramKind int

const (
	// String is a bare token, taken verbatim.
	String paramKind = iota
	// Number is a base-10 integer token.
	Number
	// OptionalString is a String that may be omitted.
	OptionalString
	// OptionalNumber is a Number that may be omitted.
	OptionalNumber
)

func (k paramKind) optional() bool {
	return k == OptionalString || k == OptionalNumber
}

// param names one positional token in a command's wire syntax.
type param struct {
	Name string
	Kind paramKind
}

// commandSyntax is the static, per-command entry in commandTable:
// each wire command's positional argument types, payload flag and
// alias. It holds no result-to-wire-token map; the Interpreter builds
// every response token itself.
type commandSyntax struct {
	// Protocol lists the tokens following the verb, in wire order.
	Protocol []param
	// HasPayload marks storage commands that, once the header line is
	// consumed, transition the parser to payload mode for "bytes" more
	// bytes of data.
	HasPayload bool
	// Alias is set when this verb canonicalizes to a different
	// Interpreter/Cache operation name (flush_all -> flush, decr ->
	// incr). Empty means the verb names its own operation.
	Alias string
}

// CommandNames is the complete command set the server must accept.
var CommandNames = []string{
	"get", "set", "add", "replace", "append", "prepend",
	"delete", "incr", "decr", "touch", "stats", "flush", "flush_all",
	"version", "verbosity", "quit",
}

// storageProtocol is shared by set/add/replace/append/prepend: the
// wire order is "key flags exptime bytes", independent of each verb's
// cache-call argument order.
var storageProtocol = []param{
	{Name: "key", Kind: String},
	{Name: "flags", Kind: Number},
	{Name: "exptime", Kind: Number},
	{Name: "bytes", Kind: Number},
}

// commandTable is the package-level command syntax registry, a map
// literal keyed by wire verb (aliases such as decr and flush_all have
// their own entries).
var commandTable = map[string]commandSyntax{
	"get": {
		Protocol: []param{{Name: "key", Kind: String}},
	},
	"set": {
		Protocol:   storageProtocol,
		HasPayload: true,
	},
	"add": {
		Protocol:   storageProtocol,
		HasPayload: true,
	},
	"replace": {
		Protocol:   storageProtocol,
		HasPayload: true,
	},
	"append": {
		Protocol:   storageProtocol,
		HasPayload: true,
	},
	"prepend": {
		Protocol:   storageProtocol,
		HasPayload: true,
	},
	"delete": {
		Protocol: []param{{Name: "key", Kind: String}},
	},
	"incr": {
		Protocol: []param{{Name: "key", Kind: String}, {Name: "delta", Kind: Number}},
	},
	"decr": {
		Protocol: []param{{Name: "key", Kind: String}, {Name: "delta", Kind: Number}},
		Alias:    "incr",
	},
	"touch": {
		Protocol: []param{{Name: "key", Kind: String}, {Name: "exptime", Kind: Number}},
	},
	"stats": {
		Protocol: nil,
	},
	"flush": {
		Protocol: []param{{Name: "delay", Kind: OptionalNumber}},
	},
	"flush_all": {
		Protocol: []param{{Name: "delay", Kind: OptionalNumber}},
		Alias:    "flush",
	},
	"version": {
		Protocol: nil,
	},
	"verbosity": {
		Protocol: []param{{Name: "level", Kind: Number}},
	},
	"quit": {
		Protocol: nil,
	},
}

// lookup returns the syntax registered for verb and whether it exists.
func lookup(verb string) (commandSyntax, bool) {
	s, ok := commandTable[verb]
	return s, ok
}
