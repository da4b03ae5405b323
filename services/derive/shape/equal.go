// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package shape

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// ErrUnsupportedValue is returned when a value falls outside the closed set
// of runtime types.
var ErrUnsupportedValue = errors.New("unsupported value")

// Key is the deep hash of a value. Deep-equal values always share a Key.
type Key [32]byte

// encMode is the deterministic CBOR encoder used for hashing.
var encMode = func() cbor.EncMode {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("shape: canonical cbor options: %v", err))
	}
	return mode
}()

// Equal is the canonical deep equality for runtime values.
//
// Description:
//
//	Strings compare by content, numbers by value with NaN equal to NaN and
//	-0 equal to +0, lists element-wise, mappings key-wise. Func values are
//	equal only to the identical function. Every lookup, dedup check and test
//	assertion in the synthesizer goes through this function.
//
// Inputs:
//
//	a, b - Normalized runtime values.
//
// Outputs:
//
//	bool - True if a and b are deep-equal.
func Equal(a, b any) bool {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return false
		}
		if math.IsNaN(av) || math.IsNaN(bv) {
			return math.IsNaN(av) && math.IsNaN(bv)
		}
		return av == bv
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, x := range av {
			y, exists := bv[k]
			if !exists || !Equal(x, y) {
				return false
			}
		}
		return true
	case Func:
		bv, ok := b.(Func)
		return ok && reflect.ValueOf(av).Pointer() == reflect.ValueOf(bv).Pointer()
	default:
		return false
	}
}

// Hash computes the deep hash of a runtime value.
//
// Description:
//
//	Encodes a canonical copy of v (signed zero folded, NaN payloads
//	collapsed) with deterministic CBOR and returns its SHA-256. Equal
//	values produce equal keys; unequal values collide only with SHA-256
//	probability, and callers still confirm candidates with Equal.
//
// Outputs:
//
//	Key - The hash.
//	error - ErrUnsupportedValue if v is outside the closed set.
func Hash(v any) (Key, error) {
	canon, err := canonical(v)
	if err != nil {
		return Key{}, err
	}
	data, err := encMode.Marshal(canon)
	if err != nil {
		return Key{}, fmt.Errorf("encode value: %w", err)
	}
	return sha256.Sum256(data), nil
}

func canonical(v any) (any, error) {
	switch tv := v.(type) {
	case string:
		return tv, nil
	case float64:
		if tv == 0 {
			return float64(0), nil
		}
		if math.IsNaN(tv) {
			return math.NaN(), nil
		}
		return tv, nil
	case []any:
		out := make([]any, len(tv))
		for i, el := range tv {
			c, err := canonical(el)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, el := range tv {
			c, err := canonical(el)
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil
	case Func:
		// Identity is the only equality functions have.
		return "func:" + strconv.FormatUint(uint64(reflect.ValueOf(tv).Pointer()), 16), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

// Normalize converts an arbitrary Go value into the closed runtime set.
//
// Description:
//
//	Integer and float32 values become float64, any slice or array becomes
//	[]any, maps with string keys become map[string]any. Values produced by
//	JSON decoding are already normalized and pass through unchanged.
//
// Outputs:
//
//	any - The normalized value.
//	error - ErrUnsupportedValue for nil, bool, structs, pointers and other
//	        types outside the set.
func Normalize(v any) (any, error) {
	switch tv := v.(type) {
	case string, float64, Func:
		return tv, nil
	case func(args ...any) (any, error):
		return Func(tv), nil
	case nil:
		return nil, fmt.Errorf("%w: nil", ErrUnsupportedValue)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			n, err := Normalize(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: map key %s", ErrUnsupportedValue, rv.Type().Key())
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			n, err := Normalize(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = n
		}
		return out, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.String:
		return rv.String(), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

// Format renders a value for progress output and program listings.
//
// Strings are quoted, NaN prints as NaN, lists as [a, b], mappings with
// sorted keys.
func Format(v any) string {
	var sb strings.Builder
	format(&sb, v)
	return sb.String()
}

func format(sb *strings.Builder, v any) {
	switch tv := v.(type) {
	case string:
		sb.WriteString(strconv.Quote(tv))
	case float64:
		switch {
		case math.IsNaN(tv):
			sb.WriteString("NaN")
		case math.IsInf(tv, 1):
			sb.WriteString("Infinity")
		case math.IsInf(tv, -1):
			sb.WriteString("-Infinity")
		case tv == math.Trunc(tv) && math.Abs(tv) < 1e21:
			sb.WriteString(strconv.FormatFloat(tv, 'f', -1, 64))
		default:
			sb.WriteString(strconv.FormatFloat(tv, 'g', -1, 64))
		}
	case []any:
		sb.WriteByte('[')
		for i, el := range tv {
			if i > 0 {
				sb.WriteString(", ")
			}
			format(sb, el)
		}
		sb.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(tv))
		for k := range tv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(strconv.Quote(k))
			sb.WriteString(": ")
			format(sb, tv[k])
		}
		sb.WriteByte('}')
	case Func:
		sb.WriteString("<func>")
	default:
		fmt.Fprintf(sb, "%v", v)
	}
}
