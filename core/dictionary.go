package core

import (
	"sort"
	"sync"

	"sonar/tinycompress"
)

const (
	dictionaryVersion = "sonar-0.1.0"
	dictionaryBuild   = "go-tinygo"
)

// Dictionary is the data dictionary served to the host by identify: the
// command and response formats with their ids, constants and enumerations.
type Dictionary struct {
	mu       sync.RWMutex
	registry *CommandRegistry
	config   map[string]string // Constant values, rendered when added
	enums    map[string][]string
	packed   []byte // zlib JSON, nil until built
}

var globalDictionary = NewDictionary(globalRegistry)

func NewDictionary(registry *CommandRegistry) *Dictionary {
	return &Dictionary{
		registry: registry,
		config:   make(map[string]string),
		enums:    make(map[string][]string),
	}
}

// RegisterConstant adds a constant to the global dictionary
func RegisterConstant(name string, value interface{}) {
	globalDictionary.AddConstant(name, value)
}

// RegisterEnumeration adds an enumeration to the global dictionary
func RegisterEnumeration(name string, values []string) {
	globalDictionary.AddEnumeration(name, values)
}

// AddConstant records value in its dictionary form. Unsupported types
// render as an empty string.
func (d *Dictionary) AddConstant(name string, value interface{}) {
	d.mu.Lock()
	d.config[name] = valueToString(value)
	d.packed = nil
	d.mu.Unlock()
}

// AddEnumeration numbers values by position. Empty values are gaps.
func (d *Dictionary) AddEnumeration(name string, values []string) {
	d.mu.Lock()
	d.enums[name] = append([]string(nil), values...)
	d.packed = nil
	d.mu.Unlock()
}

// BuildDictionary compresses the dictionary and caches the result.
// Call once every command is registered.
func (d *Dictionary) BuildDictionary() {
	raw := d.JSON()
	packed := tinycompress.Compress(raw)

	d.mu.Lock()
	d.packed = packed
	d.mu.Unlock()
	DebugPrintln("[BuildDict] " + itoa(len(raw)) + " bytes JSON, " + itoa(len(packed)) + " bytes zlib")
}

// Generate returns the compressed dictionary, building it if needed
func (d *Dictionary) Generate() []byte {
	d.mu.RLock()
	packed := d.packed
	d.mu.RUnlock()
	if packed == nil {
		d.BuildDictionary()
		d.mu.RLock()
		packed = d.packed
		d.mu.RUnlock()
	}
	return packed
}

// JSON renders the dictionary without compression. It is written by hand
// to keep encoding/json out of the firmware image.
func (d *Dictionary) JSON() []byte {
	// Registry before dictionary, the only lock order used
	commands, responses := d.registry.Messages()

	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]byte, 0, 1024)
	out = append(out, `{"version":"`+dictionaryVersion+`","build_versions":"`+dictionaryBuild+`","config":{`...)
	out = appendObject(out, sortedKeys(d.config), func(k string) string { return `"` + d.config[k] + `"` })
	out = append(out, `},"commands":{`...)
	out = appendMessages(out, commands)
	out = append(out, `},"responses":{`...)
	out = appendMessages(out, responses)
	out = append(out, '}')

	if len(d.enums) > 0 {
		out = append(out, `,"enumerations":{`...)
		for i, name := range sortedKeys(d.enums) {
			if i > 0 {
				out = append(out, ',')
			}
			out = append(out, `"`+name+`":{`...)
			out = appendEnum(out, d.enums[name])
			out = append(out, '}')
		}
		out = append(out, '}')
	}
	return append(out, '}')
}

// appendObject writes "key":value pairs in keys order
func appendObject(out []byte, keys []string, value func(string) string) []byte {
	for i, k := range keys {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, `"`+k+`":`+value(k)...)
	}
	return out
}

// appendMessages writes message formats ordered by id
func appendMessages(out []byte, ids map[string]int) []byte {
	formats := sortedKeys(ids)
	sort.SliceStable(formats, func(i, j int) bool { return ids[formats[i]] < ids[formats[j]] })
	return appendObject(out, formats, func(f string) string { return itoa(ids[f]) })
}

func appendEnum(out []byte, values []string) []byte {
	var names []string
	index := make(map[string]int, len(values))
	for i, v := range values {
		if v != "" {
			names = append(names, v)
			index[v] = i
		}
	}
	return appendObject(out, names, func(v string) string { return itoa(index[v]) })
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetChunk copies up to count bytes of the compressed dictionary from
// offset. An empty chunk tells the host the transfer is complete.
func (d *Dictionary) GetChunk(offset uint32, count uint8) []byte {
	data := d.Generate()
	if offset >= uint32(len(data)) {
		return []byte{}
	}
	end := min(offset+uint32(count), uint32(len(data)))
	return append([]byte(nil), data[offset:end]...)
}

func GetGlobalDictionary() *Dictionary {
	return globalDictionary
}
