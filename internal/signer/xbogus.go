package signer

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"time"
)

// DefaultUserAgent 签名与请求共用的桌面浏览器UA
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// xbAlphabet X-Bogus专用的64字符编码表
const xbAlphabet = "Dkdpgh4ZKsQB80/Mfvw36XI1R25-WUAlEi7NLboqYTOPuzmFjJnryx9HVGcaStCe"

// uaKey UA摘要的RC4密钥
var uaKey = []byte{0x00, 0x01, 0x0c}

// rc4FrameKey 帧加密的RC4密钥
var rc4FrameKey = []byte{0xff}

// emptyMD5Hex 空字符串的MD5摘要,算法的固定种子
const emptyMD5Hex = "d41d8cd98f00b204e9800998ecf8427e"

// clientToken 帧尾部的固定客户端标识
const clientToken = 536919696

// XBogus X-Bogus签名生成器
// 同一{URL, UA, 秒}输入产出确定结果;时间戳字节参与帧计算,跨秒结果不同
type XBogus struct {
	userAgent string

	// Now 取当前时间,测试可注入固定时钟
	Now func() time.Time
}

// NewXBogus 创建签名生成器,userAgent为空时使用默认UA
func NewXBogus(userAgent string) *XBogus {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &XBogus{
		userAgent: userAgent,
		Now:       time.Now,
	}
}

// UserAgent 返回签名绑定的UA
func (x *XBogus) UserAgent() string {
	return x.userAgent
}

// Build 对URL(含query)生成签名
// 返回追加了X-Bogus参数的URL、28字符签名token和绑定的UA
func (x *XBogus) Build(rawURL string) (signedURL, token, userAgent string) {
	uaArray := md5StrToArray(md5Hex(
		[]byte(base64.StdEncoding.EncodeToString(rc4(uaKey, []byte(x.userAgent)))),
	))
	emptyArray := md5StrToArray(md5Hex(md5StrToArray(emptyMD5Hex)))
	urlArray := md5DoubleArray(rawURL)

	timer := uint32(x.Now().Unix())
	ct := uint32(clientToken)

	frame := []byte{
		64,
		0, // 原算法中的0.00390625在整数化后为0
		1,
		12,
		urlArray[14], urlArray[15],
		emptyArray[14], emptyArray[15],
		uaArray[14], uaArray[15],
		byte(timer >> 24), byte(timer >> 16), byte(timer >> 8), byte(timer),
		byte(ct >> 24), byte(ct >> 16), byte(ct >> 8), byte(ct),
	}

	checksum := frame[0]
	for _, v := range frame[1:] {
		checksum ^= v
	}
	frame = append(frame, checksum)

	// 偶/奇下标拆分后拼接,再按前后半区重新交织
	merged := make([]byte, 0, len(frame))
	for i := 0; i < len(frame); i += 2 {
		merged = append(merged, frame[i])
	}
	for i := 1; i < len(frame); i += 2 {
		merged = append(merged, frame[i])
	}
	woven := make([]byte, len(merged))
	half := (len(merged) + 1) / 2
	for k := 0; k < half; k++ {
		woven[2*k] = merged[k]
	}
	for k := 0; k < len(merged)-half; k++ {
		woven[2*k+1] = merged[half+k]
	}

	garbled := append([]byte{0x02, 0xff}, rc4(rc4FrameKey, woven)...)

	buf := make([]byte, 0, len(garbled)/3*4)
	for i := 0; i+2 < len(garbled); i += 3 {
		buf = append(buf, encode3To4(garbled[i], garbled[i+1], garbled[i+2])...)
	}
	token = string(buf)

	return rawURL + "&X-Bogus=" + token, token, x.userAgent
}

// md5Hex 计算MD5并返回十六进制字符串
func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// md5StrToArray 将摘要字符串还原为字节数组
// 32字符内按十六进制成对解码;更长的输入退化为逐字符取码点
func md5StrToArray(s string) []byte {
	if len(s) > 32 {
		return []byte(s)
	}
	out := make([]byte, 0, len(s)/2)
	for i := 0; i+1 < len(s); i += 2 {
		out = append(out, hexNibble(s[i])<<4|hexNibble(s[i+1]))
	}
	return out
}

func hexNibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}

// md5DoubleArray URL路径的双重MD5,取第二轮摘要的16字节
func md5DoubleArray(urlPath string) []byte {
	inner := md5Hex([]byte(urlPath))
	outer := md5Hex(md5StrToArray(inner))
	return md5StrToArray(outer)
}

// rc4 标准RC4流加密
func rc4(key, data []byte) []byte {
	s := make([]byte, 256)
	for i := range s {
		s[i] = byte(i)
	}
	j := 0
	for i := 0; i < 256; i++ {
		j = (j + int(s[i]) + int(key[i%len(key)])) % 256
		s[i], s[j] = s[j], s[i]
	}

	out := make([]byte, len(data))
	i, j := 0, 0
	for n, b := range data {
		i = (i + 1) % 256
		j = (j + int(s[i])) % 256
		s[i], s[j] = s[j], s[i]
		out[n] = b ^ s[(int(s[i])+int(s[j]))%256]
	}
	return out
}

// encode3To4 每3个密文字节映射为4个编码表字符
func encode3To4(a, b, c byte) []byte {
	x := uint32(a)<<16 | uint32(b)<<8 | uint32(c)
	return []byte{
		xbAlphabet[(x&0xFC0000)>>18],
		xbAlphabet[(x&0x3F000)>>12],
		xbAlphabet[(x&0xFC0)>>6],
		xbAlphabet[x&0x3F],
	}
}
