package vtconsumer

import "github.com/danielgatis/go-ansicode"

// Parser decodes a byte stream from the PTY into Consumer method calls.
// It is not safe for concurrent Feed calls; the I/O Pump owns a single
// Parser per session and calls Feed from its one reader goroutine.
type Parser struct {
	consumer *Consumer
	decoder  *ansicode.Decoder
}

// NewParser builds a Parser that decodes into consumer.
func NewParser(consumer *Consumer) *Parser {
	return &Parser{
		consumer: consumer,
		decoder:  ansicode.NewDecoder(consumer),
	}
}

// Feed decodes data, applying every resulting action to the Consumer's
// screens before returning.
func (p *Parser) Feed(data []byte) (int, error) {
	return p.decoder.Write(data)
}

// Consumer returns the Parser's underlying Consumer.
func (p *Parser) Consumer() *Consumer {
	return p.consumer
}
