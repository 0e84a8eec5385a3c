package models

// Report is a rendered file ready to be served or stored.
type Report struct {
	FileName string
	Data     []byte
}
