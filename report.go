package framegraph

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ReportEntry describes one live record of a compiled frame.
type ReportEntry struct {
	Name  string
	Shape string
	// Bytes is the backing size, or zero for records sharing another
	// record's backing.
	Bytes   uint64
	AliasOf string
	Owner   string
}

// MemoryReport summarizes the device memory a compiled frame uses.
type MemoryReport struct {
	Textures []ReportEntry
	Buffers  []ReportEntry

	// Graph* count graph-owned backings (pooled and history); Total* also
	// include persistent and external ones.
	GraphTextureBytes uint64
	TotalTextureBytes uint64
	GraphBufferBytes  uint64
	TotalBufferBytes  uint64

	// Aliased is the number of records sharing another record's backing.
	Aliased int
}

var printer = message.NewPrinter(language.English)

// String formats the report as a table with grouped digits.
func (r MemoryReport) String() string {
	var sb strings.Builder
	printer.Fprintf(&sb, "textures %d B graph / %d B total, buffers %d B graph / %d B total, %d aliased",
		r.GraphTextureBytes, r.TotalTextureBytes, r.GraphBufferBytes, r.TotalBufferBytes, r.Aliased)
	for _, e := range append(append([]ReportEntry(nil), r.Textures...), r.Buffers...) {
		printer.Fprintf(&sb, "\n  %-32s %-36s %14d B  %-10s", e.Name, e.Shape, e.Bytes, e.Owner)
		if e.AliasOf != "" {
			sb.WriteString(" -> " + e.AliasOf)
		}
	}
	return sb.String()
}

// Report returns the memory report computed by Compile.
func (b *Builder) Report() MemoryReport { return b.report }

func (b *Builder) buildReport() MemoryReport {
	var r MemoryReport
	for _, t := range b.textures {
		if !t.live {
			continue
		}
		e := ReportEntry{Name: t.name, Shape: t.desc.Key().String(), AliasOf: t.AliasOf(), Owner: t.owner.String()}
		if t.root == nil && t.backing != nil {
			e.Bytes = t.backing.SizeBytes()
		}
		if e.AliasOf != "" {
			r.Aliased++
		}
		r.TotalTextureBytes += e.Bytes
		if t.owner == ownedTransient || t.owner == ownedHistory {
			r.GraphTextureBytes += e.Bytes
		}
		r.Textures = append(r.Textures, e)
	}
	for _, buf := range b.buffers {
		if !buf.live {
			continue
		}
		e := ReportEntry{Name: buf.name, Shape: buf.desc.Key().String(), AliasOf: buf.AliasOf(), Owner: buf.owner.String()}
		if buf.root == nil && buf.backing != nil {
			e.Bytes = buf.backing.SizeBytes()
		}
		if e.AliasOf != "" {
			r.Aliased++
		}
		r.TotalBufferBytes += e.Bytes
		if buf.owner == ownedTransient {
			r.GraphBufferBytes += e.Bytes
		}
		r.Buffers = append(r.Buffers, e)
	}
	return r
}
