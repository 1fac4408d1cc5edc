package gpiohw

import (
	"time"

	"periph.io/x/conn/v3/gpio"
)

// tm1637 bit-bangs the two-wire protocol of the TM1637 4-digit 7-segment
// driver. The protocol resembles I2C without addressing or an ACK the
// controller cares about: start condition, bytes LSB-first, stop condition.
type tm1637 struct {
	clk gpio.PinIO
	dio gpio.PinIO
}

const (
	tmCmdData    = 0x40 // auto-increment address mode
	tmCmdAddr    = 0xC0 // start at digit 0
	tmCmdDisplay = 0x88 // display on, brightness in low 3 bits
	tmBrightness = 0x05

	tmBitDelay = 5 * time.Microsecond
)

// segments for digits 0-9, standard 7-segment encoding (bit 0 = segment A).
var tmDigits = [10]byte{
	0x3F, 0x06, 0x5B, 0x4F, 0x66, 0x6D, 0x7D, 0x07, 0x7F, 0x6F,
}

const tmBlankSegment = 0x00

func newTM1637(clk, dio gpio.PinIO) *tm1637 {
	return &tm1637{clk: clk, dio: dio}
}

func (t *tm1637) init() error {
	if err := t.clk.Out(gpio.High); err != nil {
		return err
	}
	if err := t.dio.Out(gpio.High); err != nil {
		return err
	}
	return t.blank()
}

// showNumber renders a value 0-255 right-aligned with leading blanks.
func (t *tm1637) showNumber(value int) error {
	segs := [4]byte{tmBlankSegment, tmBlankSegment, tmBlankSegment, tmBlankSegment}
	if value == 0 {
		segs[3] = tmDigits[0]
	} else {
		for pos := 3; pos >= 0 && value > 0; pos-- {
			segs[pos] = tmDigits[value%10]
			value /= 10
		}
	}
	return t.writeSegments(segs)
}

func (t *tm1637) blank() error {
	return t.writeSegments([4]byte{})
}

func (t *tm1637) writeSegments(segs [4]byte) error {
	t.start()
	if err := t.writeByte(tmCmdData); err != nil {
		return err
	}
	t.stop()

	t.start()
	if err := t.writeByte(tmCmdAddr); err != nil {
		return err
	}
	for _, s := range segs {
		if err := t.writeByte(s); err != nil {
			return err
		}
	}
	t.stop()

	t.start()
	if err := t.writeByte(tmCmdDisplay | tmBrightness); err != nil {
		return err
	}
	t.stop()
	return nil
}

func (t *tm1637) start() {
	_ = t.dio.Out(gpio.Low)
	time.Sleep(tmBitDelay)
}

func (t *tm1637) stop() {
	_ = t.clk.Out(gpio.Low)
	time.Sleep(tmBitDelay)
	_ = t.dio.Out(gpio.Low)
	time.Sleep(tmBitDelay)
	_ = t.clk.Out(gpio.High)
	time.Sleep(tmBitDelay)
	_ = t.dio.Out(gpio.High)
	time.Sleep(tmBitDelay)
}

func (t *tm1637) writeByte(b byte) error {
	for i := 0; i < 8; i++ {
		if err := t.clk.Out(gpio.Low); err != nil {
			return err
		}
		time.Sleep(tmBitDelay)
		level := gpio.Low
		if b>>i&1 == 1 {
			level = gpio.High
		}
		if err := t.dio.Out(level); err != nil {
			return err
		}
		time.Sleep(tmBitDelay)
		if err := t.clk.Out(gpio.High); err != nil {
			return err
		}
		time.Sleep(tmBitDelay)
	}

	// Clock the ACK slot without reading it; the TM1637 pulls DIO low here.
	if err := t.clk.Out(gpio.Low); err != nil {
		return err
	}
	time.Sleep(tmBitDelay)
	if err := t.clk.Out(gpio.High); err != nil {
		return err
	}
	time.Sleep(tmBitDelay)
	return t.clk.Out(gpio.Low)
}
