package protocol

import "encoding/binary"

// pvtFixture describes the NAV-PVT fields the tests care about
type pvtFixture struct {
	iTOW    uint32
	year    uint16
	month   uint8
	day     uint8
	hour    uint8
	min     uint8
	sec     uint8
	valid   uint8
	nano    int32
	fixType uint8
	flags   uint8
	numSV   uint8
	lon     int32
	lat     int32
	hMSL    int32
	pDOP    uint16
	headVeh int32
	magDec  int16
	magAcc  uint16
}

func buildPVTPayload(f pvtFixture) []byte {
	p := make([]byte, NavPVTSize)
	le := binary.LittleEndian
	velN, velD := int32(-120), int32(-15)
	le.PutUint32(p[0:4], f.iTOW)
	le.PutUint16(p[4:6], f.year)
	p[6] = f.month
	p[7] = f.day
	p[8] = f.hour
	p[9] = f.min
	p[10] = f.sec
	p[11] = f.valid
	le.PutUint32(p[12:16], 25) // tAcc
	le.PutUint32(p[16:20], uint32(f.nano))
	p[20] = f.fixType
	p[21] = f.flags
	p[22] = 0xE0 // flags2
	p[23] = f.numSV
	le.PutUint32(p[24:28], uint32(f.lon))
	le.PutUint32(p[28:32], uint32(f.lat))
	le.PutUint32(p[32:36], uint32(f.hMSL+45000)) // height
	le.PutUint32(p[36:40], uint32(f.hMSL))
	le.PutUint32(p[40:44], 1500) // hAcc
	le.PutUint32(p[44:48], 2500) // vAcc
	le.PutUint32(p[48:52], uint32(velN))
	le.PutUint32(p[52:56], 340)
	le.PutUint32(p[56:60], uint32(velD))
	le.PutUint32(p[60:64], 360)
	le.PutUint32(p[64:68], 7050000) // headMot
	le.PutUint32(p[68:72], 80)      // sAcc
	le.PutUint32(p[72:76], 1200000) // headAcc
	le.PutUint16(p[76:78], f.pDOP)
	for i := 78; i < 84; i++ {
		p[i] = 0xAA // reserved bytes must be ignored
	}
	le.PutUint32(p[84:88], uint32(f.headVeh))
	le.PutUint16(p[88:90], uint16(f.magDec))
	le.PutUint16(p[90:92], f.magAcc)
	return p
}

func buildECEFPayload(iTOW uint32, x, y, z int32, acc uint32) []byte {
	p := make([]byte, 20)
	le := binary.LittleEndian
	le.PutUint32(p[0:4], iTOW)
	le.PutUint32(p[4:8], uint32(x))
	le.PutUint32(p[8:12], uint32(y))
	le.PutUint32(p[12:16], uint32(z))
	le.PutUint32(p[16:20], acc)
	return p
}

func buildTimeUTCPayload(iTOW uint32, nano int32, year uint16, month, day, hour, min, sec, valid uint8) []byte {
	p := make([]byte, NavTimeUTCSize)
	le := binary.LittleEndian
	le.PutUint32(p[0:4], iTOW)
	le.PutUint32(p[4:8], 30)
	le.PutUint32(p[8:12], uint32(nano))
	le.PutUint16(p[12:14], year)
	p[14] = month
	p[15] = day
	p[16] = hour
	p[17] = min
	p[18] = sec
	p[19] = valid
	return p
}

func mustEncode(class, id byte, payload []byte) []byte {
	frame, err := Encode(class, id, payload)
	if err != nil {
		panic(err)
	}
	return frame
}

func defaultPVT() pvtFixture {
	return pvtFixture{
		iTOW:    345600000,
		year:    2024,
		month:   3,
		day:     14,
		hour:    12,
		min:     30,
		sec:     15,
		valid:   PVTValidDate | PVTValidTime | PVTFullyResolved,
		nano:    -12345,
		fixType: Fix3D,
		flags:   PVTFlagGNSSFixOK,
		numSV:   14,
		lon:     -1223456789,
		lat:     374567890,
		hMSL:    12345,
		pDOP:    132,
		headVeh: 9000000,
		magDec:  -1234,
		magAcc:  56,
	}
}
