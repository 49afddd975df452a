package signer

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"math/rand"
	"strconv"
	"time"
)

// abAlphabet a_bogus方案使用的编码表,与X-Bogus的表尾部不同
const abAlphabet = "Dkdpgh4ZKsQB80/Mfvw36XI1R25-WUAlEi7NLboqYTOPuzmFjJnryx9HVSCaGect"

// abTokenLen a_bogus签名的固定长度
const abTokenLen = 38

// BrowserFingerprint 合成浏览器指纹,按会话生成一次
type BrowserFingerprint struct {
	Browser       string
	Version       string
	Platform      string
	ScreenWidth   int
	ScreenHeight  int
	ColorDepth    int
	CanvasCode    string
	DeviceID      string
}

// String 指纹的签名输入表示
func (fp BrowserFingerprint) String() string {
	return fmt.Sprintf("%s/%s|%s|%dx%dx%d|%s|%s",
		fp.Browser, fp.Version, fp.Platform,
		fp.ScreenWidth, fp.ScreenHeight, fp.ColorDepth,
		fp.CanvasCode, fp.DeviceID)
}

// canvasCodes 采样自真实环境的Canvas指纹值
var canvasCodes = []string{
	"124.04347527516074",
	"124.08721426937342",
	"124.0434806260746",
	"124.04344968475198",
}

var screenSizes = [][2]int{
	{1920, 1080},
	{2560, 1440},
	{1536, 864},
	{1440, 900},
}

// GenerateFingerprint 为一个会话生成合成指纹
func GenerateFingerprint(browser string, rng *rand.Rand) BrowserFingerprint {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	size := screenSizes[rng.Intn(len(screenSizes))]

	device := make([]byte, 19)
	for i := range device {
		device[i] = byte('0' + rng.Intn(10))
	}

	version := fmt.Sprintf("1%d2.0.%d.%d", rng.Intn(3)+1, rng.Intn(9), rng.Intn(100))
	return BrowserFingerprint{
		Browser:      browser,
		Version:      version,
		Platform:     "Win32",
		ScreenWidth:  size[0],
		ScreenHeight: size[1],
		ColorDepth:   24,
		CanvasCode:   canvasCodes[rng.Intn(len(canvasCodes))],
		DeviceID:     string(device),
	}
}

// ABogus a_bogus签名生成器,平台的新一代签名方案
// 指纹在实例生命周期内固定,签名随query与毫秒时间戳变化
type ABogus struct {
	fp        BrowserFingerprint
	userAgent string

	// Now 取当前时间,测试可注入固定时钟
	Now func() time.Time
}

// NewABogus 创建a_bogus签名生成器
func NewABogus(fp BrowserFingerprint, userAgent string) *ABogus {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &ABogus{
		fp:        fp,
		userAgent: userAgent,
		Now:       time.Now,
	}
}

// Generate 对query字符串(可附带请求体)生成签名
// 返回追加了a_bogus参数的query、签名token和绑定的UA
func (a *ABogus) Generate(query, body string) (signedQuery, token, userAgent string, err error) {
	if a.fp.DeviceID == "" {
		return "", "", "", fmt.Errorf("浏览器指纹未初始化")
	}

	ts := a.Now().UnixMilli()
	signInput := strconv.FormatInt(ts, 10) + a.userAgent + a.fp.String() + query + body

	combined := hashChain([]byte(signInput))
	token = encodeABogus(combined, ts)

	return query + "&a_bogus=" + token, token, a.userAgent, nil
}

// hashChain MD5→SHA1→SHA256三级摘要,各取一段拼成24字节
func hashChain(input []byte) []byte {
	h1 := md5.Sum(input)
	h2 := sha1.Sum(h1[:])
	h3 := sha256.Sum256(h2[:])

	combined := make([]byte, 0, 24)
	combined = append(combined, h1[:8]...)
	combined = append(combined, h2[8:16]...)
	combined = append(combined, h3[16:24]...)
	return combined
}

// encodeABogus 将摘要与时间戳编码为38字符token
// 结构: 时间戳段(10) + 摘要段(24) + 校验段(4)
func encodeABogus(combined []byte, ts int64) string {
	buf := make([]byte, 0, abTokenLen)

	// 时间戳段: 毫秒时间戳逐位乘权编码
	tsStr := strconv.FormatInt(ts, 10)
	for i := 0; i < len(tsStr) && len(buf) < 10; i++ {
		idx := (int(tsStr[i]-'0') * (i + 1)) % len(abAlphabet)
		buf = append(buf, abAlphabet[idx])
	}
	for len(buf) < 10 {
		buf = append(buf, abAlphabet[0])
	}

	// 摘要段: 按位置交错混入偏移
	for i, b := range combined {
		idx := (int(b) + i) % len(abAlphabet)
		buf = append(buf, abAlphabet[idx])
	}

	// 校验段: 摘要异或折叠后展开4字符
	var checksum byte
	for _, b := range combined {
		checksum ^= b
	}
	x := uint32(checksum)<<16 | uint32(ts&0xFF)<<8 | uint32(combined[0])
	buf = append(buf,
		abAlphabet[(x>>18)&0x3F],
		abAlphabet[(x>>12)&0x3F],
		abAlphabet[(x>>6)&0x3F],
		abAlphabet[x&0x3F],
	)

	return string(buf[:abTokenLen])
}
