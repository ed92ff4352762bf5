package stdb

// maxTypeDepth bounds nesting when decoding type descriptors from untrusted bytes.
const maxTypeDepth = 256

// MarshalBSATN encodes t as a sum whose tag is t.Kind. Element names are
// encoded as option<string>, absent when empty.
func (t *AlgebraicType) MarshalBSATN(w *Writer) error {
	w.PutTag(uint8(t.Kind))
	switch t.Kind {
	case KindRef:
		w.PutU32(uint32(t.Ref))
	case KindProduct, KindSum:
		w.PutLen(len(t.Elements))
		for _, e := range t.Elements {
			if e.Name == "" {
				w.PutU8(0)
			} else {
				w.PutU8(1)
				w.PutString(e.Name)
			}
			if err := e.Type.MarshalBSATN(w); err != nil {
				return err
			}
		}
	case KindArray, KindOption:
		return t.Elem.MarshalBSATN(w)
	}
	return nil
}

func (t *AlgebraicType) UnmarshalBSATN(r *Reader) error {
	return t.unmarshal(r, 0)
}

func (t *AlgebraicType) unmarshal(r *Reader, depth int) error {
	if depth > maxTypeDepth {
		return dataErrf(r.Orig, r.Off(), ErrSizeMismatch, "type nesting deeper than %d", maxTypeDepth)
	}
	tag, err := r.Tag(kindCount)
	if err != nil {
		return err
	}
	*t = AlgebraicType{Kind: Kind(tag)}
	switch t.Kind {
	case KindRef:
		v, err := r.U32()
		if err != nil {
			return err
		}
		t.Ref = Ref(v)
	case KindProduct, KindSum:
		n, err := r.Len()
		if err != nil {
			return err
		}
		if n > 0 {
			t.Elements = make([]Element, 0, r.capHint(n))
		}
		for range n {
			var e Element
			present, err := r.OptionTag()
			if err != nil {
				return err
			}
			if present {
				e.Name, err = r.String()
				if err != nil {
					return err
				}
			}
			e.Type = new(AlgebraicType)
			if err := e.Type.unmarshal(r, depth+1); err != nil {
				return err
			}
			t.Elements = append(t.Elements, e)
		}
	case KindArray, KindOption:
		t.Elem = new(AlgebraicType)
		return t.Elem.unmarshal(r, depth+1)
	}
	return nil
}

// MarshalBSATN encodes the typespace as array<(name: option<string>, type)>.
func (ts *Typespace) MarshalBSATN(w *Writer) error {
	w.PutLen(len(ts.Types))
	for i, t := range ts.Types {
		if name := ts.NameOf(Ref(i)); name == "" {
			w.PutU8(0)
		} else {
			w.PutU8(1)
			w.PutString(name)
		}
		if err := t.MarshalBSATN(w); err != nil {
			return err
		}
	}
	return nil
}

func (ts *Typespace) UnmarshalBSATN(r *Reader) error {
	n, err := r.Len()
	if err != nil {
		return err
	}
	*ts = Typespace{}
	for range n {
		var name string
		present, err := r.OptionTag()
		if err != nil {
			return err
		}
		if present {
			name, err = r.String()
			if err != nil {
				return err
			}
		}
		t := new(AlgebraicType)
		if err := t.UnmarshalBSATN(r); err != nil {
			return err
		}
		ts.Add(name, t)
	}
	return nil
}
