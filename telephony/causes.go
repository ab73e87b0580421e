package telephony

// Q.850 cause codes seen on SIP teardown, normalized to the reason names
// stored on call detail records. Remote-initiated causes carry a "remote"
// prefix so the coordinator knows the leg is already gone.
var causeNames = map[int]string{
	16: "remote-clearing",
	17: "remote-busy",
	18: "remote-no-answer",
	19: "remote-no-answer",
	21: "remote-rejected",
	27: "destination-out-of-order",
	31: "remote-clearing",
	34: "congestion",
	38: "network-out-of-order",
}

// CauseName maps a Q.850 cause code to a detail-record reason. Unknown
// codes fall back to normal clearing.
func CauseName(code int) string {
	if name, ok := causeNames[code]; ok {
		return name
	}
	return "remote-clearing"
}
