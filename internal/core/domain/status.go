package domain

import "fmt"

// StatusCode is an IEEE 802.11 management-frame status code.
type StatusCode uint16

const (
	StatusSuccess                StatusCode = 0
	StatusUnspecified            StatusCode = 1
	StatusInvalidPairwiseCipher  StatusCode = 18
	StatusInvalidAKMP            StatusCode = 19
	StatusInvalidIE              StatusCode = 40
	StatusInvalidGroupCipher     StatusCode = 41
	StatusInvalidRSNIECapability StatusCode = 45
)

func (s StatusCode) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusUnspecified:
		return "UNSPECIFIED"
	case StatusInvalidPairwiseCipher:
		return "INVALID_PAIRWISE_CIPHER"
	case StatusInvalidAKMP:
		return "INVALID_AKMP"
	case StatusInvalidIE:
		return "INVALID_IE"
	case StatusInvalidGroupCipher:
		return "INVALID_GROUP_CIPHER"
	case StatusInvalidRSNIECapability:
		return "INVALID_RSNIE_CAPABILITY"
	default:
		return fmt.Sprintf("STATUS(%d)", uint16(s))
	}
}

// ReasonCode is an IEEE 802.11 deauth/disassoc reason code.
type ReasonCode uint16

const (
	ReasonUnspecified         ReasonCode = 1
	ReasonPrevAuthNotValid    ReasonCode = 2
	ReasonDisassocAPBusy      ReasonCode = 5
	ReasonClass3FromNonAssoc  ReasonCode = 7
	Reason4WayHandshakeTimout ReasonCode = 15
	ReasonInvalidIE           ReasonCode = 40
	ReasonInvalidPairwise     ReasonCode = 43
	ReasonInvalidAKMP         ReasonCode = 44
)

func (r ReasonCode) String() string {
	switch r {
	case ReasonUnspecified:
		return "UNSPECIFIED"
	case ReasonPrevAuthNotValid:
		return "PREV_AUTH_NOT_VALID"
	case ReasonDisassocAPBusy:
		return "DISASSOC_AP_BUSY"
	case ReasonClass3FromNonAssoc:
		return "CLASS3_FROM_NONASSOC_STA"
	case Reason4WayHandshakeTimout:
		return "4WAY_HANDSHAKE_TIMEOUT"
	case ReasonInvalidIE:
		return "INVALID_IE"
	case ReasonInvalidPairwise:
		return "INVALID_PAIRWISE_CIPHER"
	case ReasonInvalidAKMP:
		return "INVALID_AKMP"
	default:
		return fmt.Sprintf("REASON(%d)", uint16(r))
	}
}

// AuthAlgorithm is the 802.11 Authentication Algorithm Number field.
type AuthAlgorithm uint16

const (
	AuthAlgoOpenSystem AuthAlgorithm = 0
	AuthAlgoSharedKey  AuthAlgorithm = 1
)

// FrameSubtype identifies a management-frame subtype the engine dispatches on.
type FrameSubtype int

const (
	SubtypeProbeRequest FrameSubtype = iota
	SubtypeAuthentication
	SubtypeAssociationRequest
	SubtypeReassociationRequest
	SubtypeDisassociation
	SubtypeDeauthentication
)

func (s FrameSubtype) String() string {
	switch s {
	case SubtypeProbeRequest:
		return "ProbeRequest"
	case SubtypeAuthentication:
		return "Authentication"
	case SubtypeAssociationRequest:
		return "AssociationRequest"
	case SubtypeReassociationRequest:
		return "ReassociationRequest"
	case SubtypeDisassociation:
		return "Disassociation"
	case SubtypeDeauthentication:
		return "Deauthentication"
	default:
		return "Unknown"
	}
}
