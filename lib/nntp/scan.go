package nntp

// scanners for the RFC 3977 framing rules
// partial buffers are not errors, a scanner returning 0 means the
// frame is not yet fully buffered and must be retried with more bytes

// find the end of a single line response
// returns the offset one past the first \n preceded by \r
// returns 0 if no complete line is buffered yet
func findResponseLine(buf []byte) int {
	for i := 1; i < len(buf); i++ {
		if buf[i] == '\n' && buf[i-1] == '\r' {
			return i + 1
		}
	}
	return 0
}

// find the end of a multi line body block
// a non empty body ends with \r\n.\r\n
// an empty body is exactly the 3 byte terminator .\r\n
// returns the offset one past the terminator or 0 if incomplete
func findBodyEnd(buf []byte) int {
	if len(buf) == 3 && buf[0] == '.' && buf[1] == '\r' && buf[2] == '\n' {
		return 3
	}
	for i := 4; i < len(buf); i++ {
		if buf[i] == '\n' && buf[i-1] == '\r' && buf[i-2] == '.' &&
			buf[i-3] == '\n' && buf[i-4] == '\r' {
			return i + 1
		}
	}
	return 0
}

// parse the leading 3 digit response code off a response line
// returns the code and true, or 0 and false if the line is malformed
func scanResponseCode(line []byte) (int, bool) {
	if len(line) < 3 {
		return 0, false
	}
	code := 0
	for i := 0; i < 3; i++ {
		c := line[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		code = code*10 + int(c-'0')
	}
	return code, true
}
