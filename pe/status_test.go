package pe

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Status", func() {
	It("should decode the status bits", func() {
		s := MakeExceptionStatus(2) | StatusTimeout

		Expect(s.IsSuccess()).To(BeFalse())
		Expect(s.Exception()).To(BeTrue())
		Expect(s.Cause()).To(Equal(uint32(2)))
		Expect(s.Timeout()).To(BeTrue())
		Expect(s.InvalidBitmapSize()).To(BeFalse())
		Expect(s.String()).To(Equal("timeout, exception(cause 2)"))
	})

	DescribeTable("completion",
		func(s Status, want Completion) {
			Expect(Result{Status: s}.Completion()).To(Equal(want))
		},
		Entry("success", Status(0), CompletionSuccess),
		Entry("exception", MakeExceptionStatus(11), CompletionException),
		Entry("bitmap size", StatusInvalidBitmapSize, CompletionError),
		Entry("timeout", StatusTimeout, CompletionTimeout),
	)

	It("should format results", func() {
		Expect(FormatResult(Result{Cycles: 1234})).To(Equal([]string{
			"PE result: Success (1234 cycles)",
		}))

		Expect(FormatResult(Result{
			Status:  MakeExceptionStatus(7) | StatusInvalidBitmapSize,
			ExcArg0: 0x40000abc,
			ExcArg1: 0x1f,
		})).To(Equal([]string{
			"PE result: Exception (cause 7, epc 0x40000ABC, tval 0x0000001F)",
			"PE result: Error - Invalid bitmap size",
		}))

		Expect(FormatResult(Result{Status: StatusTimeout})).
			To(Equal([]string{"PE result: Timeout"}))
	})

	It("should format bitmaps", func() {
		bmp := make([]byte, 20)
		bmp[0] = 0x01
		bmp[17] = 0xff

		Expect(FormatBitmap(bmp)).To(Equal("result bitmap: " +
			"\n0000: 01 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00" +
			"\n0010: 00 ff 00 00"))
	})
})
