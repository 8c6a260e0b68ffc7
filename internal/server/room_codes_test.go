package server_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"damas-server/internal/server"
)

func TestGenerateRoomCodeFormat(t *testing.T) {
	assert := assert.New(t)
	usedCodes := make(map[string]bool)

	for range 100 {
		code := server.GenerateRoomCode(usedCodes)

		assert.Equal(4, len(code))
		for _, ch := range code {
			assert.True(ch >= 'A' && ch <= 'Z')
			assert.NotEqual('I', ch)
			assert.NotEqual('O', ch)
		}
	}
}

func TestGenerateRoomCodeAvoidsUsedCodes(t *testing.T) {
	usedCodes := map[string]bool{
		"AAAA": true,
		"ZZZZ": true,
		"GAME": true,
	}

	for range 100 {
		code := server.GenerateRoomCode(usedCodes)

		assert.NotEqual(t, "AAAA", code)
		assert.NotEqual(t, "ZZZZ", code)
		assert.NotEqual(t, "GAME", code)
	}
}

func TestValidateRoomCode(t *testing.T) {
	for _, code := range []string{"BEAR", "GAME", "PLAY", "AAAA", "zzzz"} {
		assert.NoError(t, server.ValidateRoomCode(code), "code %s", code)
	}

	for _, code := range []string{"", "ABC", "ABCDE", "AB1D", "AB D", "AIAA", "AOAA"} {
		assert.Error(t, server.ValidateRoomCode(code), "code %s", code)
	}
}

func TestNormalizeRoomCode(t *testing.T) {
	assert.Equal(t, "BEAR", server.NormalizeRoomCode("  bear "))
	assert.Equal(t, "GAME", server.NormalizeRoomCode("GAME"))
}
