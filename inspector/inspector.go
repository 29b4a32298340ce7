// Package inspector implements a read-only terminal UI for browsing a
// compiled object file or a halted VM's post-mortem state, in the style of
// the reference toolchain's debugger TUI — built on tcell/tview, laid out
// as bordered panels inside a Flex, refreshed by rewriting each TextView's
// text. Unlike that debugger, this view never drives execution: there is
// no stepping, no breakpoints, no command input. It only renders whatever
// snapshot it was handed.
package inspector

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/ashenford/rvm32/binfmt"
)

// ObjectSnapshot is everything the inspector needs to render a compiled
// object file: the header fields, its segment table, and every segment's
// address and bytes (the hex pane shows the first segment).
type ObjectSnapshot struct {
	Path       string
	MemorySize uint32
	RawTable   []binfmt.RawSegment
	Segments   []binfmt.Segment
}

// NewObjectSnapshot parses data as an object file and captures the fields
// the inspector displays, without materializing a flat memory image. path
// is only kept as the label shown in the header.
func NewObjectSnapshot(path string, data []byte) (*ObjectSnapshot, error) {
	file, err := binfmt.FromBytes(data)
	if err != nil {
		return nil, err
	}
	return &ObjectSnapshot{
		Path:       path,
		MemorySize: file.MemorySize(),
		RawTable:   file.RawSegments(),
		Segments:   file.Segments(),
	}, nil
}

// FaultSnapshot is the VM state the run subcommand captures when execution
// traps: the faulting PC, every register, and the memory image as it stood
// at the moment of the fault.
type FaultSnapshot struct {
	Reason    string
	PC        uint32
	Regs      [16]uint32
	Mem       []byte
	FaultAddr uint32
	HasAddr   bool
}

// Inspector is one terminal session over either an ObjectSnapshot or a
// FaultSnapshot (never both — the two subcommands that construct this
// package populate exactly one).
type Inspector struct {
	app    *tview.Application
	header *tview.TextView
	hex    *tview.TextView

	// data is addressed starting at dataBase; addr is the display cursor,
	// independently adjustable by PageUp/PageDown/arrow navigation.
	data     []byte
	dataBase uint32
	baseFmt  func(addr uint32) string
	addr     uint32
}

// NewObjectInspector renders an object file's header and segment table in
// the header pane, and a hex dump of the first segment's bytes (or, with
// no segments, an empty dump) in the scrollable pane.
func NewObjectInspector(snap *ObjectSnapshot) *Inspector {
	insp := newInspector()

	var b strings.Builder
	fmt.Fprintf(&b, "[yellow]%s[white]\n", snap.Path)
	fmt.Fprintf(&b, "memory_size: 0x%08X (%d bytes)\n", snap.MemorySize, snap.MemorySize)
	fmt.Fprintf(&b, "segments:    %d\n\n", len(snap.RawTable))
	fmt.Fprintf(&b, "%-10s %-10s %-10s\n", "offset", "address", "size")
	for _, seg := range snap.RawTable {
		fmt.Fprintf(&b, "0x%08X 0x%08X 0x%08X\n", seg.Offset, seg.Addr, seg.Size)
	}
	insp.header.SetText(b.String())

	if len(snap.Segments) > 0 {
		first := snap.Segments[0]
		insp.data = first.Data
		insp.dataBase = first.Addr
		insp.addr = first.Addr
	}
	insp.baseFmt = func(addr uint32) string { return fmt.Sprintf("0x%08X", addr) }
	insp.renderHex()
	insp.bindKeys()
	return insp
}

// NewFaultInspector renders a halted VM's registers and fault reason in
// the header pane, and a hex dump of memory starting 0x40 bytes before the
// fault address's 16-byte row (clamped to 0, or at address 0 if the trap
// carried no address) in the scrollable pane.
func NewFaultInspector(snap *FaultSnapshot) *Inspector {
	insp := newInspector()

	var b strings.Builder
	fmt.Fprintf(&b, "[red]fault: %s[white]\n", snap.Reason)
	fmt.Fprintf(&b, "pc: 0x%08X\n", snap.PC)
	if snap.HasAddr {
		fmt.Fprintf(&b, "addr: 0x%08X\n", snap.FaultAddr)
	}
	b.WriteString("\n")
	for row := 0; row < 4; row++ {
		var cols []string
		for col := 0; col < 4; col++ {
			i := row*4 + col
			cols = append(cols, fmt.Sprintf("x%-2d: 0x%08X", i, snap.Regs[i]))
		}
		b.WriteString(strings.Join(cols, "  "))
		b.WriteString("\n")
	}
	insp.header.SetText(b.String())

	insp.data = snap.Mem
	if snap.HasAddr {
		insp.addr = snap.FaultAddr &^ 0xF
		if insp.addr > 0x40 {
			insp.addr -= 0x40
		} else {
			insp.addr = 0
		}
	}
	insp.baseFmt = func(addr uint32) string { return fmt.Sprintf("0x%08X", addr) }
	insp.renderHex()
	insp.bindKeys()
	return insp
}

func newInspector() *Inspector {
	header := tview.NewTextView().SetDynamicColors(true)
	header.SetBorder(true).SetTitle(" Summary ")

	hex := tview.NewTextView().SetDynamicColors(true).SetScrollable(true).SetWrap(false)
	hex.SetBorder(true).SetTitle(" Memory (PgUp/PgDn to scroll, q to quit) ")

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(header, 9, 0, false).
		AddItem(hex, 0, 1, true)

	return &Inspector{
		app:    tview.NewApplication().SetRoot(layout, true),
		header: header,
		hex:    hex,
	}
}

// hexRows is how many 16-byte rows renderHex draws per screenful.
const hexRows = 32

// renderHex writes hexRows rows of 16 bytes each, starting at insp.addr,
// in the classic offset/hex/ascii triple-column layout.
func (insp *Inspector) renderHex() {
	var b strings.Builder
	for row := 0; row < hexRows; row++ {
		rowAddr := insp.addr + uint32(row*16)
		b.WriteString(insp.baseFmt(rowAddr))
		b.WriteString(": ")

		var hexBytes []string
		var ascii []byte
		for col := 0; col < 16; col++ {
			idx := int64(rowAddr) - int64(insp.dataBase) + int64(col)
			if idx < 0 || idx >= int64(len(insp.data)) {
				hexBytes = append(hexBytes, "??")
				ascii = append(ascii, '.')
				continue
			}
			v := insp.data[idx]
			hexBytes = append(hexBytes, fmt.Sprintf("%02X", v))
			if v >= 32 && v < 127 {
				ascii = append(ascii, v)
			} else {
				ascii = append(ascii, '.')
			}
		}
		b.WriteString(strings.Join(hexBytes, " "))
		b.WriteString("  ")
		b.Write(ascii)
		b.WriteString("\n")
	}
	insp.hex.SetText(b.String())
}

func (insp *Inspector) bindKeys() {
	insp.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch {
		case event.Key() == tcell.KeyCtrlC:
			insp.app.Stop()
			return nil
		case event.Rune() == 'q':
			insp.app.Stop()
			return nil
		case event.Key() == tcell.KeyPgDn:
			insp.scroll(int32(hexRows * 16))
			return nil
		case event.Key() == tcell.KeyPgUp:
			insp.scroll(-int32(hexRows * 16))
			return nil
		case event.Key() == tcell.KeyDown:
			insp.scroll(16)
			return nil
		case event.Key() == tcell.KeyUp:
			insp.scroll(-16)
			return nil
		}
		return event
	})
}

func (insp *Inspector) scroll(delta int32) {
	if delta < 0 && uint32(-delta) > insp.addr {
		insp.addr = 0
	} else {
		insp.addr = uint32(int64(insp.addr) + int64(delta))
	}
	insp.renderHex()
}

// Run starts the terminal UI and blocks until the user quits.
func (insp *Inspector) Run() error {
	return insp.app.Run()
}
