package dkg

import (
    "encoding/binary"
    "errors"
    "hash/crc32"
    "io"
    "os"
    "path/filepath"
)

// 磁盘结构：
// [magic u32][version u16][flags u16][length u32][crc32 u32][body ...]
const frameHeaderLen = 4 + 2 + 2 + 4 + 4

const frameVersion uint16 = 1

var (
    errBadMagic  = errors.New("bad magic")
    errBadLength = errors.New("bad length")
    errCRC       = errors.New("crc mismatch")
)

// writeFrame 原子写（tmp+fsync+rename）；keepBak 时旧文件保留为 .bak。
func writeFrame(path string, magic uint32, flags uint16, body []byte, keepBak bool) error {
    dir := filepath.Dir(path)
    if err := os.MkdirAll(dir, 0o700); err != nil { return err }
    tmp := path + ".tmp"
    f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
    if err != nil { return err }

    var hdr [frameHeaderLen]byte
    off := 0
    binary.BigEndian.PutUint32(hdr[off:], magic); off += 4
    binary.BigEndian.PutUint16(hdr[off:], frameVersion); off += 2
    binary.BigEndian.PutUint16(hdr[off:], flags); off += 2
    binary.BigEndian.PutUint32(hdr[off:], uint32(len(body))); off += 4
    binary.BigEndian.PutUint32(hdr[off:], crc32.ChecksumIEEE(body))

    if _, err = f.Write(hdr[:]); err != nil { _ = f.Close(); return err }
    if _, err = f.Write(body); err != nil { _ = f.Close(); return err }
    if err = f.Sync(); err != nil { _ = f.Close(); return err }
    if err = f.Close(); err != nil { return err }

    if keepBak {
        if _, err := os.Stat(path); err == nil {
            _ = os.Rename(path, path+".bak")
        }
    }
    if err = os.Rename(tmp, path); err != nil { return err }
    if d, err2 := os.Open(dir); err2 == nil { _ = d.Sync(); _ = d.Close() }
    return nil
}

// readFrame 校验 magic 与 crc 后返回 flags 与 body。
func readFrame(path string, magic uint32) (uint16, []byte, error) {
    f, err := os.Open(path)
    if err != nil { return 0, nil, err }
    defer f.Close()
    var hdr [frameHeaderLen]byte
    if _, err = io.ReadFull(f, hdr[:]); err != nil { return 0, nil, err }
    off := 0
    if binary.BigEndian.Uint32(hdr[off:]) != magic { return 0, nil, errBadMagic }
    off += 4
    _ = binary.BigEndian.Uint16(hdr[off:]); off += 2 // version
    flags := binary.BigEndian.Uint16(hdr[off:]); off += 2
    length := binary.BigEndian.Uint32(hdr[off:]); off += 4
    want := binary.BigEndian.Uint32(hdr[off:])
    if length == 0 || length > maxFrameLen { return 0, nil, errBadLength }
    body := make([]byte, int(length))
    if _, err = io.ReadFull(f, body); err != nil { return 0, nil, err }
    if crc32.ChecksumIEEE(body) != want { return 0, nil, errCRC }
    return flags, body, nil
}

const maxFrameLen = 64 << 20
