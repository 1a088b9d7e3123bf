package infer

// distinctCap bounds the per-column distinct-value set.
const distinctCap = 10000

// Column folds the values of one column into a resolved type.
//
// The fold keeps two joins: one where "1"/"0" count as Unsigned and one where
// they count as Boolean. The column is Boolean only when the second join is
// Boolean, i.e. every non-null value was in the boolean vocabulary.
//
// State is constant-size apart from the distinct-value set, which stops
// growing at distinctCap entries.
type Column struct {
	rec *Recognizer

	join     Type
	boolJoin Type

	dateMask     uint64
	dateTimeMask uint64
	sawDate      bool

	count int
	nulls int

	distinct map[string]struct{}
	capped   bool
}

// NewColumn returns an empty fold using rec for classification.
func NewColumn(rec *Recognizer) *Column {
	return &Column{
		rec:          rec,
		dateMask:     ^uint64(0),
		dateTimeMask: ^uint64(0),
		distinct:     make(map[string]struct{}),
	}
}

// Add classifies v and folds it in.
func (c *Column) Add(v string) {
	c.AddValue(v, c.rec.Classify(v))
}

// AddValue folds an already classified value.
func (c *Column) AddValue(raw string, val Value) {
	c.count++
	if val.Type == Null {
		c.nulls++
		return
	}

	c.join = Join(c.join, val.Type)
	if val.BoolDigit {
		c.boolJoin = Join(c.boolJoin, Boolean)
	} else {
		c.boolJoin = Join(c.boolJoin, val.Type)
	}

	switch val.Type {
	case Date:
		c.sawDate = true
		c.dateMask &= val.Layouts
	case DateTime:
		c.dateTimeMask &= val.Layouts
	}

	if !c.capped {
		c.distinct[raw] = struct{}{}
		if len(c.distinct) >= distinctCap {
			c.capped = true
		}
	}
}

// Resolution is the resolved state of a Column.
type Resolution struct {
	Type Type

	// Layout is the date layout values parse with, for Date and DateTime.
	Layout string

	// DateAmbiguous is set when date values matched no common layout; Type is
	// Text in that case.
	DateAmbiguous bool

	Count     int
	NullCount int

	// Distinct counts distinct non-null raw values; DistinctCapped means the
	// count stopped at the cap.
	Distinct       int
	DistinctCapped bool
}

// Resolve returns the column type for the values seen so far. It does not
// reset the fold.
func (c *Column) Resolve() Resolution {
	res := Resolution{
		Type:           c.join,
		Count:          c.count,
		NullCount:      c.nulls,
		Distinct:       len(c.distinct),
		DistinctCapped: c.capped,
	}
	if c.boolJoin == Boolean {
		res.Type = Boolean
	}

	switch res.Type {
	case Date:
		res.Layout = c.rec.Dates().Layout(c.dateMask)
		res.DateAmbiguous = c.dateMask == 0
	case DateTime:
		res.Layout = c.rec.Dates().Layout(c.dateTimeMask)
		res.DateAmbiguous = c.dateTimeMask == 0 || (c.sawDate && c.dateMask == 0)
	}
	if res.DateAmbiguous {
		res.Type = Text
		res.Layout = ""
	}
	return res
}
