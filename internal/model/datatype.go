// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

// =============================================================================
// DATA TYPE
// =============================================================================

// DataKind enumerates the record kinds the agent stream can carry.
type DataKind int

const (
	DataUnknown DataKind = iota
	DataLLM
	DataAction
	DataSignal
	DataAppendix
	DataText
)

// Wire names of the known data types.
const (
	DataTypeLLM      = "llm"
	DataTypeAction   = "action"
	DataTypeSignal   = "signal"
	DataTypeAppendix = "appendix"
	DataTypeText     = "text"
)

// DataType is the parsed data_type discriminant of a stream record.
// Unknown tags keep their raw value so they can be stored verbatim.
type DataType struct {
	Kind DataKind
	Raw  string
}

// ParseDataType maps a wire tag to its DataType.
func ParseDataType(raw string) DataType {
	switch raw {
	case DataTypeLLM:
		return DataType{Kind: DataLLM, Raw: raw}
	case DataTypeAction:
		return DataType{Kind: DataAction, Raw: raw}
	case DataTypeSignal:
		return DataType{Kind: DataSignal, Raw: raw}
	case DataTypeAppendix:
		return DataType{Kind: DataAppendix, Raw: raw}
	case DataTypeText:
		return DataType{Kind: DataText, Raw: raw}
	default:
		return DataType{Kind: DataUnknown, Raw: raw}
	}
}

// String returns the wire tag.
func (d DataType) String() string {
	return d.Raw
}

// String returns a short name for the kind.
func (k DataKind) String() string {
	switch k {
	case DataLLM:
		return DataTypeLLM
	case DataAction:
		return DataTypeAction
	case DataSignal:
		return DataTypeSignal
	case DataAppendix:
		return DataTypeAppendix
	case DataText:
		return DataTypeText
	default:
		return "unknown"
	}
}

// =============================================================================
// SIGNALS
// =============================================================================

// SignalKind enumerates the control values carried by signal records.
type SignalKind int

const (
	SignalUnknown SignalKind = iota
	SignalStart
	SignalLLMEnd
	SignalToolEnd
)

// Wire values of the known signals.
const (
	SignalValueStart   = "START"
	SignalValueLLMEnd  = "LLM_END"
	SignalValueToolEnd = "TOOL_END"
)

// Signal is a parsed signal value. Unknown values keep their raw form.
type Signal struct {
	Kind SignalKind
	Raw  string
}

// ParseSignal maps the data of a signal record to a Signal.
func ParseSignal(raw string) Signal {
	switch raw {
	case SignalValueStart:
		return Signal{Kind: SignalStart, Raw: raw}
	case SignalValueLLMEnd:
		return Signal{Kind: SignalLLMEnd, Raw: raw}
	case SignalValueToolEnd:
		return Signal{Kind: SignalToolEnd, Raw: raw}
	default:
		return Signal{Kind: SignalUnknown, Raw: raw}
	}
}

// String returns the wire value.
func (s Signal) String() string {
	return s.Raw
}
