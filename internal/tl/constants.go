package tl

// Boxed constructor ids ("CRCs") for the envelope-level and handshake TL
// constructors this core needs to speak without a generated schema. Values
// match the public MTProto schema.
const (
	CRCVector   uint32 = 0x1cb5c415
	CRCBoolTrue uint32 = 0x997275b5
	CRCBoolFalse uint32 = 0xbc799737

	CRCReqPQMulti uint32 = 0xbe7e8ef1
	CRCResPQ      uint32 = 0x05162463

	CRCPQInnerData       uint32 = 0x83c95aec
	CRCPQInnerDataDc     uint32 = 0xa9f55f95
	CRCPQInnerDataTemp   uint32 = 0x3c6a84d4
	CRCPQInnerDataTempDc uint32 = 0x56fddf88

	CRCReqDHParams       uint32 = 0xd712e4be
	CRCServerDHParamsOk  uint32 = 0xd0e8075c
	CRCServerDHParamsFail uint32 = 0x79cb045d
	CRCServerDHInnerData uint32 = 0xb5890dba

	CRCClientDHInnerData  uint32 = 0x6643b654
	CRCSetClientDHParams  uint32 = 0xf5045f1f
	CRCDHGenOk            uint32 = 0x3bcbf734
	CRCDHGenRetry         uint32 = 0x46dc1fb9
	CRCDHGenFail          uint32 = 0xa69dae02

	CRCMsgContainer uint32 = 0x73f1f8dc
	CRCMsgCopy      uint32 = 0xe06046b2
	CRCRpcResult    uint32 = 0xf35c6d01
	CRCRpcError     uint32 = 0x2144ca19
	CRCGzipPacked   uint32 = 0x3072cfa1

	CRCMsgsAck             uint32 = 0x62d6b459
	CRCBadServerSalt       uint32 = 0xedab447b
	CRCBadMsgNotification  uint32 = 0xa7eff811
	CRCNewSessionCreated   uint32 = 0x9ec20908
	CRCPing                uint32 = 0x7abe77ec
	CRCPong                uint32 = 0x347773c5
	CRCPingDelayDisconnect uint32 = 0xf3427b8c
	CRCMsgsStateReq        uint32 = 0xda69fb52
	CRCMsgsStateInfo       uint32 = 0x04deb57d
	CRCMsgResendReq        uint32 = 0x7d861a08

	CRCInvokeWithLayer uint32 = 0xda9b0d0d
	CRCInitConnection  uint32 = 0x785188b8
	CRCHelpGetConfig   uint32 = 0xc4f9186b
	CRCConfig          uint32 = 0x330b4067
	CRCDcOption        uint32 = 0x18b7a10d
)

// RPC error codes with well-known textual payloads (spec.md §7).
const (
	ErrCodeSeeOther          = 303
	ErrCodeFloodWait         = 420
	ErrCodeAuthKeyUnregister = 401
)
