// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package serial

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// baudRates maps line speeds to their termios constants. Only speeds
// BMC serial interfaces actually use are listed.
var baudRates = map[int]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
}

// Port is an open serial device configured for raw 8N1 operation.
type Port struct {
	file *os.File
}

// OpenPort opens the serial device at path and configures it raw:
// 8 data bits, no parity, one stop bit, no flow control, no line
// discipline processing. Reads block for at least one byte.
func OpenPort(path string, baud int) (*Port, error) {
	speed, ok := baudRates[baud]
	if !ok {
		return nil, fmt.Errorf("serial: unsupported baud rate %d", baud)
	}

	file, err := os.OpenFile(path, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("serial: opening %s: %w", path, err)
	}

	fd := int(file.Fd())
	tio, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("serial: reading termios for %s: %w", path, err)
	}

	// Raw mode: no echo, no signals, no CR/LF translation, no flow
	// control; 8 data bits, receiver on, modem lines ignored.
	tio.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF
	tio.Oflag &^= unix.OPOST
	tio.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	tio.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS
	tio.Cflag |= unix.CS8 | unix.CLOCAL | unix.CREAD

	tio.Ispeed = speed
	tio.Ospeed = speed
	tio.Cflag &^= unix.CBAUD
	tio.Cflag |= speed

	// Block until at least one byte arrives; no inter-byte timer.
	tio.Cc[unix.VMIN] = 1
	tio.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, tio); err != nil {
		file.Close()
		return nil, fmt.Errorf("serial: configuring %s: %w", path, err)
	}

	return &Port{file: file}, nil
}

func (p *Port) Read(b []byte) (int, error)  { return p.file.Read(b) }
func (p *Port) Write(b []byte) (int, error) { return p.file.Write(b) }
func (p *Port) Close() error                { return p.file.Close() }

// Name returns the device path the port was opened with.
func (p *Port) Name() string { return p.file.Name() }
