// Package policy implements every trace-driven cache replacement/admission
// engine the simulator supports, one file per mechanism, mirroring the
// teacher's one-package-per-concern, one-file-per-engine layout.
package policy

import (
	"strconv"
	"strings"

	"github.com/cachesim/cachesim/internal/hashkey"
	"github.com/cachesim/cachesim/internal/xlog"
)

// ReqType distinguishes a GET-style lookup from a SET-style write, mirroring
// the original Request's req_type field.
type ReqType int

const (
	ReqGet ReqType = iota
	ReqSet
)

// Request is one trace line: a single access against one cached object.
type Request struct {
	Time   float64
	AppID  uint32
	Type   ReqType
	KeySz  int32
	ValSz  int32
	FragSz int32
	Kid    uint64
	Hit    bool
}

// Size returns the total bytes this request occupies: key size + value size.
func (r *Request) Size() int32 { return r.KeySz + r.ValSz }

// HashKey hashes Kid and reduces mod modulus, used to route a request to a
// shard/partition. SHA-1 in the original is replaced with xxhash per the
// simulator's own "any fast non-cryptographic hash" substitution note.
func (r *Request) HashKey(modulus int) int {
	return hashkey.Shard(r.Kid, modulus)
}

// ProcMiss is the sentinel process_request return value for "not cached",
// matching the original Policy::PROC_MISS = ~0lu.
const ProcMiss = ^uint64(0)

// ParseRequest parses one CSV trace line: time,appid,type,key_sz,val_sz,kid.
// Malformed lines are logged and reported via ok=false, matching
// "Malformed line couldn't be parsed" in the original Request::parse.
func ParseRequest(line string) (r Request, ok bool) {
	tokens := strings.Split(line, ",")
	if len(tokens) < 6 {
		xlog.Errorf("malformed trace line (want 6 fields, got %d): %q", len(tokens), line)
		return r, false
	}
	var err error
	if r.Time, err = strconv.ParseFloat(strings.TrimSpace(tokens[0]), 64); err != nil {
		xlog.Errorf("malformed trace line: bad time: %q", line)
		return r, false
	}
	appid, err := strconv.ParseInt(strings.TrimSpace(tokens[1]), 10, 64)
	if err != nil {
		xlog.Errorf("malformed trace line: bad appid: %q", line)
		return r, false
	}
	r.AppID = uint32(appid)
	typ, err := strconv.ParseInt(strings.TrimSpace(tokens[2]), 10, 64)
	if err != nil {
		xlog.Errorf("malformed trace line: bad type: %q", line)
		return r, false
	}
	r.Type = ReqType(typ)
	keySz, err := strconv.ParseInt(strings.TrimSpace(tokens[3]), 10, 64)
	if err != nil {
		xlog.Errorf("malformed trace line: bad key_sz: %q", line)
		return r, false
	}
	r.KeySz = int32(keySz)
	valSz, err := strconv.ParseInt(strings.TrimSpace(tokens[4]), 10, 64)
	if err != nil {
		xlog.Errorf("malformed trace line: bad val_sz: %q", line)
		return r, false
	}
	r.ValSz = int32(valSz)
	kid, err := strconv.ParseUint(strings.TrimSpace(tokens[5]), 10, 64)
	if err != nil {
		xlog.Errorf("malformed trace line: bad kid: %q", line)
		return r, false
	}
	r.Kid = kid
	return r, true
}
