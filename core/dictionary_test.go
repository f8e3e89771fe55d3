package core

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDictionary(t *testing.T) {
	dict := NewDictionary(NewCommandRegistry())

	dict.AddConstant("TEST_CONST", uint32(42))
	dict.AddConstant("TEST_STR", "hello")
	dict.AddEnumeration("test_pins", []string{"gpio0", "", "gpio2"})
	dict.registry.Register("test_cmd", "arg=%u", func(data *[]byte) error {
		return nil
	})
	dict.registry.Register("test_resp", "val=%i", nil)

	output := string(dict.JSON())
	t.Log("Generated dictionary:\n" + output)

	assert.True(t, strings.HasPrefix(output, `{"version":"sonar-0.1.0"`))
	assert.Contains(t, output, `"TEST_CONST":"42"`)
	assert.Contains(t, output, `"TEST_STR":"hello"`)
	assert.Contains(t, output, `"commands":{"test_cmd arg=%u":0}`)
	assert.Contains(t, output, `"responses":{"test_resp val=%i":1}`)
	assert.Contains(t, output, `"test_pins":{"gpio0":0,"gpio2":2}`, "empty values leave gaps")

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(output), &parsed), "dictionary must be valid JSON")
}

func TestDictionaryCommandsOrderedByID(t *testing.T) {
	dict := NewDictionary(NewCommandRegistry())
	for _, name := range []string{"zeta", "alpha", "mid"} {
		dict.registry.Register(name, "", func(data *[]byte) error { return nil })
	}

	assert.Contains(t, string(dict.JSON()), `"commands":{"zeta":0,"alpha":1,"mid":2}`)
}

func TestDictionaryChunks(t *testing.T) {
	dict := NewDictionary(NewCommandRegistry())
	dict.AddConstant("TEST", uint32(123))

	full := dict.Generate()
	require.NotEmpty(t, full)

	chunk1 := dict.GetChunk(0, 10)
	assert.Equal(t, full[:10], chunk1)

	var joined []byte
	for offset := uint32(0); offset < uint32(len(full)); offset += 7 {
		joined = append(joined, dict.GetChunk(offset, 7)...)
	}
	assert.Equal(t, full, joined)

	assert.Empty(t, dict.GetChunk(uint32(len(full)), 10), "end of dictionary")
	assert.Empty(t, dict.GetChunk(uint32(len(full)+100), 10))

	// Chunks are copies
	chunk1[0] ^= 0xFF
	assert.NotEqual(t, chunk1[0], dict.Generate()[0])
}

func TestDictionaryCacheInvalidation(t *testing.T) {
	dict := NewDictionary(NewCommandRegistry())
	dict.BuildDictionary()
	before := dict.Generate()

	dict.AddConstant("LATE", uint32(1))
	after := dict.Generate()

	assert.NotEqual(t, before, after)
	assert.Contains(t, string(dict.JSON()), `"LATE":"1"`)
}

func TestDictionaryConstantValues(t *testing.T) {
	dict := NewDictionary(NewCommandRegistry())
	dict.AddConstant("HCSR04_TIMEOUT_US", uint32(50000))
	dict.AddConstant("SIGNED", int32(-3))
	dict.AddConstant("WIDE", uint64(1)<<33)
	dict.AddConstant("FLAG", true)
	dict.AddConstant("UNSUPPORTED", 1.5)

	out := string(dict.JSON())
	assert.Contains(t, out, `"HCSR04_TIMEOUT_US":"50000"`)
	assert.Contains(t, out, `"SIGNED":"-3"`)
	assert.Contains(t, out, `"WIDE":"8589934592"`)
	assert.Contains(t, out, `"FLAG":"1"`)
	assert.Contains(t, out, `"UNSUPPORTED":""`)
}
