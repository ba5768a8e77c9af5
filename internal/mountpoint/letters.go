package mountpoint

// letterPool skips A and B (floppy) and C (system), and is searched from
// Z down.
const letterPool = "ZYXWVUTSRQPONMLKJIHGFED"

func freeLetter(used uint32, claimed map[string]bool) (string, bool) {
	for _, r := range letterPool {
		bit := uint32(1) << uint(r-'A')
		letter := string(r)
		if used&bit != 0 || claimed[letter+":"] {
			continue
		}
		return letter, true
	}
	return "", false
}
