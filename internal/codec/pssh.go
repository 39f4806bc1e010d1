package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/beevik/etree"
)

const (
	// PlayReadyHeaderNS WRMHEADER 命名空间
	PlayReadyHeaderNS = "http://schemas.microsoft.com/DRM/2007/03/PlayReadyHeader"

	// KeyIDSize 密钥标识长度
	KeyIDSize = 16

	// recordTypeRightsManagementHeader PlayReady Object 中 WRMHEADER 记录类型
	recordTypeRightsManagementHeader = 0x0001

	psshFixedSize = 4 + 4 + 4 + 16 + 4
)

// PlayReadySystemID PlayReady 的 DRM 系统标识
var PlayReadySystemID = [16]byte{
	0x9a, 0x04, 0xf0, 0x79, 0x98, 0x40, 0x42, 0x86,
	0xab, 0x92, 0xe6, 0x5b, 0xe0, 0x88, 0x5f, 0x95,
}

var (
	// ErrInvalidKeyID 密钥标识长度不是 16 字节
	ErrInvalidKeyID = errors.New("key id must be 16 bytes")
	// ErrInvalidPSSH 不是合法的 PlayReady PSSH 盒
	ErrInvalidPSSH = errors.New("invalid pssh box")
)

// PSSHBox 解析后的 PSSH 盒
type PSSHBox struct {
	Size     uint32
	Version  uint8
	Flags    uint32
	SystemID [16]byte
	Data     []byte // PlayReady Object
}

// WRMHeaderXML 构造最小 WRMHEADER 文档
func WRMHeaderXML(kidBase64 string) string {
	doc := etree.NewDocument()
	root := doc.CreateElement("WRMHEADER")
	root.CreateAttr("xmlns", PlayReadyHeaderNS)
	root.CreateAttr("version", "4.0.0.0")
	data := root.CreateElement("DATA")
	protect := data.CreateElement("PROTECTINFO")
	protect.CreateElement("KEYLEN").SetText("16")
	protect.CreateElement("ALGID").SetText("AESCTR")
	data.CreateElement("KID").SetText(kidBase64)

	s, err := doc.WriteToString()
	if err != nil {
		return ""
	}
	return s
}

// BuildPSSHFromKeyID 由 Base64 密钥标识构造 PlayReady PSSH 盒，返回 Base64
func BuildPSSHFromKeyID(kidBase64 string) (string, error) {
	kid, err := DecodeBase64(kidBase64)
	if err != nil {
		return "", err
	}
	if len(kid) != KeyIDSize {
		return "", fmt.Errorf("%w: got %d", ErrInvalidKeyID, len(kid))
	}
	header := EncodeUTF16LE(WRMHeaderXML(EncodeBase64(kid)))

	// PlayReady Object: 记录数 + (类型, 长度, 内容)，小端
	object := make([]byte, 0, 2+2+2+len(header))
	object = binary.LittleEndian.AppendUint16(object, 1)
	object = binary.LittleEndian.AppendUint16(object, recordTypeRightsManagementHeader)
	object = binary.LittleEndian.AppendUint16(object, uint16(len(header)))
	object = append(object, header...)

	size := psshFixedSize + len(object)
	box := make([]byte, 0, size)
	box = binary.BigEndian.AppendUint32(box, uint32(size))
	box = append(box, "pssh"...)
	box = binary.BigEndian.AppendUint32(box, 0)
	box = append(box, PlayReadySystemID[:]...)
	box = binary.BigEndian.AppendUint32(box, uint32(len(object)))
	box = append(box, object...)

	return EncodeBase64(box), nil
}

// ParsePSSH 解析版本 0 的 PlayReady PSSH 盒
func ParsePSSH(b []byte) (*PSSHBox, error) {
	if len(b) < psshFixedSize {
		return nil, fmt.Errorf("%w: too short (%d bytes)", ErrInvalidPSSH, len(b))
	}
	if string(b[4:8]) != "pssh" {
		return nil, fmt.Errorf("%w: box type %q", ErrInvalidPSSH, b[4:8])
	}
	box := &PSSHBox{
		Size:    binary.BigEndian.Uint32(b[0:4]),
		Version: b[8],
		Flags:   binary.BigEndian.Uint32(b[8:12]) & 0x00ffffff,
	}
	if int(box.Size) != len(b) {
		return nil, fmt.Errorf("%w: size field %d, have %d", ErrInvalidPSSH, box.Size, len(b))
	}
	if box.Version != 0 {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidPSSH, box.Version)
	}
	copy(box.SystemID[:], b[12:28])
	if !bytes.Equal(box.SystemID[:], PlayReadySystemID[:]) {
		return nil, fmt.Errorf("%w: system id %x", ErrInvalidPSSH, box.SystemID)
	}
	n := binary.BigEndian.Uint32(b[28:32])
	if int(n) != len(b)-psshFixedSize {
		return nil, fmt.Errorf("%w: data length %d", ErrInvalidPSSH, n)
	}
	box.Data = b[psshFixedSize:]
	return box, nil
}

// HeaderXML 从 PlayReady Object 中取出第一个 WRMHEADER 记录
func (p *PSSHBox) HeaderXML() (string, error) {
	d := p.Data
	if len(d) < 2 {
		return "", fmt.Errorf("%w: empty object", ErrInvalidPSSH)
	}
	count := binary.LittleEndian.Uint16(d)
	d = d[2:]
	for i := 0; i < int(count); i++ {
		if len(d) < 4 {
			return "", fmt.Errorf("%w: truncated record", ErrInvalidPSSH)
		}
		typ := binary.LittleEndian.Uint16(d)
		n := int(binary.LittleEndian.Uint16(d[2:]))
		d = d[4:]
		if len(d) < n {
			return "", fmt.Errorf("%w: record length %d", ErrInvalidPSSH, n)
		}
		if typ == recordTypeRightsManagementHeader {
			return DecodeUTF16LE(d[:n])
		}
		d = d[n:]
	}
	return "", fmt.Errorf("%w: no rights management header", ErrInvalidPSSH)
}
