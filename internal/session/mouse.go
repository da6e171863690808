package session

import "fmt"

// mouseButton maps the protocol's button name to the SGR (1006) button
// code for a press: 0=left, 1=middle, 2=right.
func mouseButton(button string) (int, error) {
	switch button {
	case "left":
		return 0, nil
	case "middle":
		return 1, nil
	case "right":
		return 2, nil
	default:
		return 0, fmt.Errorf("invalid mouse button %q: want left, middle, or right", button)
	}
}

// EncodeMouseMove builds an SGR mouse-motion report at (row, col), 0-indexed
// in the API and 1-indexed on the wire, with the motion bit (32) set and no
// button held.
func EncodeMouseMove(row, col int) []byte {
	return []byte(fmt.Sprintf("\x1b[<%d;%d;%dM", 32, col+1, row+1))
}

// EncodeMouseClick builds the SGR press ('M') then release ('m') sequence
// for button at (row, col), 0-indexed in the API and 1-indexed on the wire.
func EncodeMouseClick(row, col int, button string) ([]byte, error) {
	b, err := mouseButton(button)
	if err != nil {
		return nil, err
	}
	press := fmt.Sprintf("\x1b[<%d;%d;%dM", b, col+1, row+1)
	release := fmt.Sprintf("\x1b[<%d;%d;%dm", b, col+1, row+1)
	return []byte(press + release), nil
}
