package server

import (
	"errors"
	"math/rand"
	"strings"
)

// codeAlphabet omits I and O, which read as digits on small screens.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ"

const codeLength = 4

func GenerateRoomCode(usedCodes map[string]bool) string {
	for {
		code := make([]byte, codeLength)
		for i := range code {
			code[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
		}
		roomCode := string(code)

		if !usedCodes[roomCode] {
			return roomCode
		}
	}
}

func ValidateRoomCode(code string) error {
	if len(code) != codeLength {
		return errors.New("INVALID_CODE: Room code must be exactly 4 characters")
	}

	code = strings.ToUpper(code)
	for _, ch := range code {
		if !strings.ContainsRune(codeAlphabet, ch) {
			return errors.New("INVALID_CODE: Room code contains invalid characters")
		}
	}

	return nil
}

func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
