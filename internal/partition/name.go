package partition

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind classifies a partition file by its role in the build.
type Kind int

const (
	// KindPartial is a flush of one batch: <key>.termMap.<seq>.
	KindPartial Kind = iota
	// KindPart is a merge spill at a finer level: <key>.termMap.part.<seq>.
	KindPart
	// KindMaster is the merged result for a key: <key>.termMap.master.
	KindMaster
	// KindDocMap holds document locations up to and including the key: <maxDocID>.docMap.
	KindDocMap
	// KindStats is the corpus statistics file.
	KindStats
)

const (
	termMapInfix = ".termMap."
	partPrefix   = "part."
	masterSuffix = "master"
	docMapSuffix = ".docMap"
	statsFile    = "processing.stats"
	tmpSuffix    = ".tmp"
)

func (k Kind) String() string {
	switch k {
	case KindPartial:
		return "partial"
	case KindPart:
		return "part"
	case KindMaster:
		return "master"
	case KindDocMap:
		return "docMap"
	case KindStats:
		return "stats"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Name identifies a partition file. Seq is meaningful for partial and part
// partitions; for docMap partitions it carries the ceiling document ID.
type Name struct {
	Key  string
	Kind Kind
	Seq  int
}

func Partial(key string, seq int) Name { return Name{Key: key, Kind: KindPartial, Seq: seq} }

func Part(key string, seq int) Name { return Name{Key: key, Kind: KindPart, Seq: seq} }

func Master(key string) Name { return Name{Key: key, Kind: KindMaster} }

func DocMap(ceiling int) Name {
	return Name{Key: strconv.Itoa(ceiling), Kind: KindDocMap, Seq: ceiling}
}

func Stats() Name { return Name{Kind: KindStats} }

// Level is the prefix length the key was bucketed at.
func (n Name) Level() int { return len(n.Key) }

func (n Name) String() string {
	switch n.Kind {
	case KindPartial:
		return n.Key + termMapInfix + strconv.Itoa(n.Seq)
	case KindPart:
		return n.Key + termMapInfix + partPrefix + strconv.Itoa(n.Seq)
	case KindMaster:
		return n.Key + termMapInfix + masterSuffix
	case KindDocMap:
		return n.Key + docMapSuffix
	case KindStats:
		return statsFile
	default:
		return ""
	}
}

// Parse recognises a partition file name. Temporary files and anything else
// not produced by the store are rejected.
func Parse(filename string) (Name, bool) {
	if filename == statsFile {
		return Stats(), true
	}
	if strings.HasSuffix(filename, tmpSuffix) {
		return Name{}, false
	}
	if key, ok := strings.CutSuffix(filename, docMapSuffix); ok {
		ceiling, err := strconv.Atoi(key)
		if err != nil || ceiling < 0 {
			return Name{}, false
		}
		return DocMap(ceiling), true
	}
	key, rest, ok := strings.Cut(filename, termMapInfix)
	if !ok || key == "" {
		return Name{}, false
	}
	if rest == masterSuffix {
		return Master(key), true
	}
	if seqText, ok := strings.CutPrefix(rest, partPrefix); ok {
		seq, err := strconv.Atoi(seqText)
		if err != nil || seq < 0 {
			return Name{}, false
		}
		return Part(key, seq), true
	}
	seq, err := strconv.Atoi(rest)
	if err != nil || seq < 0 {
		return Name{}, false
	}
	return Partial(key, seq), true
}
