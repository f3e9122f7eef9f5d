package htsfile

import (
	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
)

// Record is an owned, handle-independent alignment record. Unlike the
// native *sam.Record it references its alignment targets by name, so it can
// outlive the header it was read under and be written through any File
// whose header contains the same reference names. Every field is a copy;
// retaining a Record across reads is always safe.
type Record struct {
	Name string
	// Ref is the reference sequence name, "" for unplaced records.
	Ref string
	// Pos is the 0-based alignment position, -1 for unplaced records.
	Pos   int
	MapQ  byte
	Flags sam.Flags
	Cigar sam.Cigar
	// MateRef is the mate's reference sequence name, "" if unset.
	MateRef string
	MatePos int
	TempLen int
	// Seq holds the expanded base letters and Qual the raw phred scores.
	Seq  []byte
	Qual []byte
	Aux  []sam.Aux
}

// ParseRecord copies rec out into an owned Record. It retains nothing from
// rec, so the result stays valid after rec's File reads again.
func ParseRecord(rec *sam.Record) Record {
	r := Record{
		Name:    string(append([]byte(nil), rec.Name...)),
		Ref:     refName(rec.Ref),
		Pos:     rec.Pos,
		MapQ:    rec.MapQ,
		Flags:   rec.Flags,
		MateRef: refName(rec.MateRef),
		MatePos: rec.MatePos,
		TempLen: rec.TempLen,
	}
	if len(rec.Cigar) > 0 {
		r.Cigar = append(sam.Cigar(nil), rec.Cigar...)
	}
	if rec.Seq.Length > 0 {
		r.Seq = rec.Seq.Expand()
	}
	if len(rec.Qual) > 0 {
		r.Qual = append([]byte(nil), rec.Qual...)
	}
	for _, aux := range rec.AuxFields {
		r.Aux = append(r.Aux, append(sam.Aux(nil), aux...))
	}
	return r
}

// NativeRecord translates r into the codec's native representation,
// resolving reference names through h. It fails if r names a reference
// absent from h. The result is freshly taken from the codec's free pool and
// shares no memory with r.
func (r *Record) NativeRecord(h *sam.Header) (*sam.Record, error) {
	return r.native(refsByName(h))
}

func (r *Record) native(refs map[string]*sam.Reference) (*sam.Record, error) {
	ref, err := resolveRef(refs, r.Ref)
	if err != nil {
		return nil, err
	}
	mateRef, err := resolveRef(refs, r.MateRef)
	if err != nil {
		return nil, err
	}
	rec := sam.GetFromFreePool()
	rec.Name = r.Name
	rec.Ref = ref
	rec.Pos = r.Pos
	rec.MapQ = r.MapQ
	rec.Flags = r.Flags
	rec.MateRef = mateRef
	rec.MatePos = r.MatePos
	rec.TempLen = r.TempLen
	if len(r.Cigar) > 0 {
		rec.Cigar = append(rec.Cigar[:0], r.Cigar...)
	}
	rec.Seq = sam.NewSeq(r.Seq)
	rec.Qual = append(rec.Qual[:0], r.Qual...)
	for _, aux := range r.Aux {
		rec.AuxFields = append(rec.AuxFields, append(sam.Aux(nil), aux...))
	}
	return rec, nil
}

func refName(ref *sam.Reference) string {
	if ref == nil {
		return ""
	}
	return ref.Name()
}

func resolveRef(refs map[string]*sam.Reference, name string) (*sam.Reference, error) {
	if name == "" || name == "*" {
		return nil, nil
	}
	ref, ok := refs[name]
	if !ok {
		return nil, errors.E("reference", name, "not in header")
	}
	return ref, nil
}

func refsByName(h *sam.Header) map[string]*sam.Reference {
	if h == nil {
		return nil
	}
	refs := make(map[string]*sam.Reference, len(h.Refs()))
	for _, ref := range h.Refs() {
		refs[ref.Name()] = ref
	}
	return refs
}

// cloneNative deep-copies a native record, including its variable-length
// fields, so the clone is unaffected by recycling of the original.
func cloneNative(rec *sam.Record) *sam.Record {
	c := sam.GetFromFreePool()
	c.Name = string(append([]byte(nil), rec.Name...))
	c.Ref = rec.Ref
	c.Pos = rec.Pos
	c.MapQ = rec.MapQ
	c.Flags = rec.Flags
	c.MateRef = rec.MateRef
	c.MatePos = rec.MatePos
	c.TempLen = rec.TempLen
	c.Cigar = append(c.Cigar[:0], rec.Cigar...)
	c.Seq = sam.Seq{Length: rec.Seq.Length, Seq: append([]sam.Doublet(nil), rec.Seq.Seq...)}
	c.Qual = append(c.Qual[:0], rec.Qual...)
	for _, aux := range rec.AuxFields {
		c.AuxFields = append(c.AuxFields, append(sam.Aux(nil), aux...))
	}
	return c
}
